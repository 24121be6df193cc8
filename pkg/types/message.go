package types

// MessageRole identifies the author of a chat message sent to an LLM provider.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // RoleSystem carries instructions for the model.
	RoleUser      MessageRole = "user"      // RoleUser carries the content to work on.
	RoleAssistant MessageRole = "assistant" // RoleAssistant carries model output.
)

// Message is a single chat message exchanged with an LLM provider.
type Message struct {
	Role    MessageRole
	Content string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// Draft is a generated outreach message ready to be composed.
type Draft struct {
	// Subject is optional; an empty subject leaves the composer field untouched.
	Subject string
	Body    string
}
