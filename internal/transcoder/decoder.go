// Package transcoder turns the upstream Hunyuan event stream into OpenAI
// chat completion output, either re-framed chunk by chunk or folded into a
// single response.
package transcoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hunyuan-gateway/internal/llm"
	"hunyuan-gateway/internal/sse"
)

type EventKind int

const (
	// EventIgnored is a frame without a "data:" prefix (comments, event
	// names, keep-alives).
	EventIgnored EventKind = iota
	EventData
	// EventDone is the "[DONE]" sentinel.
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventDone:
		return "done"
	default:
		return "ignored"
	}
}

// Event is one decoded frame. Data is set only for EventData.
type Event struct {
	Kind EventKind
	Data *llm.UpstreamEvent
}

// DecodeError reports a data frame whose payload is not a valid upstream
// event. It only affects that frame.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode upstream event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode classifies a single frame and parses its payload.
func Decode(frame string) (Event, error) {
	frame = strings.TrimSpace(frame)
	if !strings.HasPrefix(frame, sse.DataPrefix) {
		return Event{Kind: EventIgnored}, nil
	}

	payload := strings.TrimSpace(frame[len(sse.DataPrefix):])
	if payload == sse.Done {
		return Event{Kind: EventDone}, nil
	}

	var ev llm.UpstreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, &DecodeError{Payload: payload, Err: err}
	}
	if err := checkShape(payload); err != nil {
		return Event{}, &DecodeError{Payload: payload, Err: err}
	}
	return Event{Kind: EventData, Data: &ev}, nil
}

var (
	errNoChoices = errors.New("missing choices array")
	errNoDelta   = errors.New("choice without delta")
)

// checkShape rejects events that decode cleanly but carry nothing to
// relay: a null payload, absent or null choices, or a choice whose delta is
// absent or null. An empty choices array is valid.
func checkShape(payload string) error {
	var shape struct {
		Choices *[]struct {
			Delta json.RawMessage `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &shape); err != nil {
		return err
	}
	if shape.Choices == nil {
		return errNoChoices
	}
	for i, ch := range *shape.Choices {
		if len(ch.Delta) == 0 || string(ch.Delta) == "null" {
			return fmt.Errorf("choice %d: %w", i, errNoDelta)
		}
	}
	return nil
}
