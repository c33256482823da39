package llm

// Request shape we send to the Hunyuan chat endpoint.
type UpstreamRequest struct {
	Stream            bool          `json:"stream"`
	Model             string        `json:"model"`
	QueryID           string        `json:"query_id"`
	Messages          []ChatMessage `json:"messages"`
	StreamModeration  bool          `json:"stream_moderation"`
	EnableEnhancement bool          `json:"enable_enhancement"`

	// Caller-facing model and stream flag; never serialized upstream.
	CallerModel  string `json:"-"`
	ClientStream bool   `json:"-"`
}

// UpstreamEvent is one decoded "data:" event of the upstream stream.
type UpstreamEvent struct {
	ID                string           `json:"id"`
	Created           int64            `json:"created"`
	Model             string           `json:"model"`
	SystemFingerprint string           `json:"system_fingerprint"`
	Choices           []UpstreamChoice `json:"choices"`
}

type UpstreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}
