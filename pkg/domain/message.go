package domain

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one action requested by the model in an assistant message.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of a single tool call. Exactly one result exists
// per call; aborted calls carry a synthetic error result.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one entry of the action-history transcript. Assistant messages
// may carry tool calls; tool messages carry exactly one result.
type Message struct {
	Role      Role        `json:"role"`
	Content   string      `json:"content,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`

	// ImageB64 attaches a base64-encoded PNG to a user message; adapters
	// render it as an image part next to Content.
	ImageB64 string `json:"image_b64,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ImageMessage builds a user message carrying a base64-encoded PNG.
func ImageMessage(content, imageB64 string) Message {
	return Message{Role: RoleUser, Content: content, ImageB64: imageB64}
}

// AssistantMessage builds a plain assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage builds a tool-result message.
func ToolMessage(result ToolResult) Message {
	return Message{Role: RoleTool, Result: &result, Content: result.Content}
}
