package llm

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	// Role is set on the first chunk only
	Role string

	// Content is the text delta
	Content string

	// Finished marks the last chunk of a successful stream
	Finished bool

	// Error is set when the stream failed
	Error error
}

// IsError reports whether the chunk carries a stream error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}
