package schema

// Resource describes a static resource the server exposes.
type Resource struct {
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Size        *int64       `json:"size,omitempty"`
}

// ResourceTemplate describes a parameterized family of resources.
type ResourceTemplate struct {
	URITemplate string       `json:"uriTemplate"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ListResourcesRequestParams contains parameters for resource listing requests.
type ListResourcesRequestParams struct {
	PaginatedRequestParams
}

// ListResourcesResult is the server's response to a resources/list request.
type ListResourcesResult struct {
	PaginatedResult
	Meta      Meta       `json:"_meta,omitempty"`
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult is the server's response to resources/templates/list.
type ListResourceTemplatesResult struct {
	PaginatedResult
	Meta              Meta               `json:"_meta,omitempty"`
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ReadResourceRequestParams contains parameters for resource reads.
type ReadResourceRequestParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult contains resource contents.
type ReadResourceResult struct {
	Meta     Meta              `json:"_meta,omitempty"`
	Contents []ResourceContent `json:"contents"`
}

// SubscribeRequestParams contains parameters for resources/subscribe.
type SubscribeRequestParams struct {
	URI string `json:"uri"`
}

// UnsubscribeRequestParams contains parameters for resources/unsubscribe.
type UnsubscribeRequestParams struct {
	URI string `json:"uri"`
}
