package schema

// Role represents the sender or recipient of messages and data in a conversation.
type Role string

// Role constants
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptMessage describes a message returned as part of a prompt.
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// PromptArgument describes an argument that a prompt can accept.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes a prompt or prompt template that the server offers.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ListPromptsRequestParams contains parameters for prompt listing requests.
type ListPromptsRequestParams struct {
	PaginatedRequestParams
}

// ListPromptsResult is the server's response to a prompts/list request.
type ListPromptsResult struct {
	PaginatedResult
	Meta    Meta     `json:"_meta,omitempty"`
	Prompts []Prompt `json:"prompts"`
}

// GetPromptRequestParams contains parameters for prompt retrieval.
type GetPromptRequestParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult contains the retrieved prompt.
type GetPromptResult struct {
	Meta        Meta            `json:"_meta,omitempty"`
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}
