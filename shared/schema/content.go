package schema

// Annotations contain optional metadata about objects used by the client.
type Annotations struct {
	Audience []Role   `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

// ResourceContent represents the actual content of a resource (text or blob).
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"` // For text resources
	Blob     string `json:"blob,omitempty"` // Base64 for binary resources
}

// Content represents various types of message content.
type Content struct {
	// The type discriminator ('text', 'image', 'audio', 'resource').
	Type string `json:"type"`
	// Optional annotations for the client.
	Annotations *Annotations `json:"annotations,omitempty"`
	// Text content (only for type: "text").
	Text *string `json:"text,omitempty"`
	// Base64-encoded data (only for type: "image", "audio").
	Data *string `json:"data,omitempty"`
	// MIME type of the data (only for type: "image", "audio").
	MimeType *string `json:"mimeType,omitempty"`
	// Embedded resource content (only for type: "resource").
	Resource *ResourceContent `json:"resource,omitempty"`
}

// NewTextContent creates a new text content slice.
func NewTextContent(text string) []Content {
	return []Content{{Type: "text", Text: &text}}
}

// NewImageContent creates a new image content slice.
func NewImageContent(data string, mimeType string) []Content {
	return []Content{{Type: "image", Data: &data, MimeType: &mimeType}}
}

// NewAudioContent creates a new audio content slice.
func NewAudioContent(data string, mimeType string) []Content {
	return []Content{{Type: "audio", Data: &data, MimeType: &mimeType}}
}

// NewResourceContent embeds resource contents into a message.
func NewResourceContent(resource ResourceContent) []Content {
	return []Content{{Type: "resource", Resource: &resource}}
}
