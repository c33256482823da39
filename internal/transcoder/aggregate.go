package transcoder

import (
	"context"
	"errors"
	"io"
	"strings"

	"hunyuan-gateway/internal/llm"
)

// ErrUpstreamEmpty means the upstream stream ended without a single choice.
var ErrUpstreamEmpty = errors.New("failed to receive data from Hunyuan API")

type choiceAcc struct {
	index        int
	role         string
	content      strings.Builder
	reasoning    strings.Builder
	finishReason *string
}

// Aggregator folds upstream events into one response. Choices keep the
// order in which their index was first seen.
type Aggregator struct {
	byIndex map[int]*choiceAcc
	order   []*choiceAcc
	id      string
	created int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{byIndex: make(map[int]*choiceAcc)}
}

// Add folds one event. Text fragments are appended, the first role seen
// for an index is kept, and a non-empty finish_reason replaces the
// previous one while a missing one leaves it untouched.
func (a *Aggregator) Add(ev *llm.UpstreamEvent) {
	if ev.ID != "" {
		a.id = ev.ID
	}
	if ev.Created != 0 {
		a.created = ev.Created
	}

	for _, ch := range ev.Choices {
		acc, ok := a.byIndex[ch.Index]
		if !ok {
			acc = &choiceAcc{index: ch.Index}
			a.byIndex[ch.Index] = acc
			a.order = append(a.order, acc)
		}

		d := ch.Delta
		if acc.role == "" && d.Role != nil && *d.Role != "" {
			acc.role = *d.Role
		}
		if d.Content != nil {
			acc.content.WriteString(*d.Content)
		}
		if d.ReasoningContent != nil {
			acc.reasoning.WriteString(*d.ReasoningContent)
		}
		if ch.FinishReason != nil && *ch.FinishReason != "" {
			reason := *ch.FinishReason
			acc.finishReason = &reason
		}
	}
}

// Len is the number of distinct choices seen.
func (a *Aggregator) Len() int { return len(a.order) }

// Result builds the response for the caller-facing model. It fails with
// ErrUpstreamEmpty when no choice was seen.
func (a *Aggregator) Result(model string) (*llm.ChatCompletion, error) {
	if len(a.order) == 0 {
		return nil, ErrUpstreamEmpty
	}

	out := &llm.ChatCompletion{
		ID:      a.id,
		Object:  llm.ObjectCompletion,
		Created: a.created,
		Model:   model,
		Choices: make([]llm.CompletionChoice, 0, len(a.order)),
	}
	for _, acc := range a.order {
		role := acc.role
		if role == "" {
			role = llm.RoleAssistant
		}
		out.Choices = append(out.Choices, llm.CompletionChoice{
			Index: acc.index,
			Message: llm.ChatMessage{
				Role:             role,
				Content:          acc.content.String(),
				ReasoningContent: acc.reasoning.String(),
			},
			FinishReason: acc.finishReason,
		})
	}
	return out, nil
}

// Aggregate drains r and returns the folded response. Token usage is not
// computed and is reported as zero.
func Aggregate(ctx context.Context, r *Reader, model string) (*llm.ChatCompletion, error) {
	agg := NewAggregator()
	for {
		ev, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if ev.Kind == EventData {
			agg.Add(ev.Data)
		}
	}
	return agg.Result(model)
}
