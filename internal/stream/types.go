package stream

// ChatCompletionChunk represents one decoded event from a streaming chat completion.
type ChatCompletionChunk struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
	Choices           []Choice `json:"choices"`
}

// Choice is a single completion choice within a chunk.
type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Delta holds the incremental fragment of a choice. Content is nil when the
// field is absent, which is not the same as an empty fragment.
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Content returns the first choice's delta content, if any.
func (c *ChatCompletionChunk) Content() (string, bool) {
	if c == nil || len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *c.Choices[0].Delta.Content, true
}
