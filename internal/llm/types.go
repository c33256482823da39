package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ObjectChunk      = "chat.completion.chunk"
	ObjectCompletion = "chat.completion"
	ObjectModel      = "model"
	ObjectList       = "list"
)

// ChatMessage is one conversation turn. It is sent upstream unchanged.
type ChatMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// UnmarshalJSON accepts content as a string, null, or an array of
// {"type":"text","text":...} parts, which are concatenated.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role             string          `json:"role"`
		Content          json.RawMessage `json:"content"`
		ReasoningContent *string         `json:"reasoning_content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	content, err := decodeContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = raw.Role
	m.Content = content
	m.ReasoningContent = ""
	if raw.ReasoningContent != nil {
		m.ReasoningContent = *raw.ReasoningContent
	}
	return nil
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func decodeContent(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("content must be a string or an array of text parts")
	}
}

// InboundRequest is a validated chat completion request from a client.
// Build it with ParseInboundRequest.
type InboundRequest struct {
	Messages []ChatMessage
	Model    string
	Stream   bool
}

// ParseInboundRequest decodes and validates a client request body. Any
// failure is a *ValidationError.
func ParseInboundRequest(body []byte) (*InboundRequest, error) {
	var raw struct {
		Messages json.RawMessage `json:"messages"`
		Model    *string         `json:"model"`
		Stream   *bool           `json:"stream"`
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &ValidationError{Reason: reasonMessagesRequired}
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &ValidationError{Reason: decodeReason(err, raw.Messages), Err: err}
	}

	msgs := bytes.TrimSpace(raw.Messages)
	if len(msgs) == 0 || msgs[0] != '[' {
		return nil, &ValidationError{Reason: reasonMessagesRequired}
	}

	var messages []ChatMessage
	if err := json.Unmarshal(msgs, &messages); err != nil {
		return nil, &ValidationError{Reason: "'messages' entries must be {role, content} objects.", Err: err}
	}

	req := &InboundRequest{
		Messages: messages,
		Stream:   true,
	}
	if raw.Model != nil {
		req.Model = strings.TrimSpace(*raw.Model)
	}
	if raw.Stream != nil {
		req.Stream = *raw.Stream
	}
	return req, nil
}

// decodeReason names the offending field when messages decoded but another
// field has the wrong type.
func decodeReason(err error, messages json.RawMessage) string {
	var typeErr *json.UnmarshalTypeError
	if len(bytes.TrimSpace(messages)) == 0 || !errors.As(err, &typeErr) {
		return reasonMessagesRequired
	}
	if typeErr.Field == "" {
		return err.Error()
	}
	return fmt.Sprintf("'%s' must be of type %s.", typeErr.Field, typeErr.Type)
}

// Delta is an incremental fragment of a choice. Nil fields were absent.
type Delta struct {
	Role             *string `json:"role,omitempty"`
	Content          *string `json:"content,omitempty"`
	ReasoningContent *string `json:"reasoning_content,omitempty"`
}

// ChatCompletionChunk is one streamed event in the OpenAI chunk format.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint"`
	Choices           []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletion is the non-streaming response body.
type ChatCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason *string     `json:"finish_reason"`
}

type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
