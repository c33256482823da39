package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"hunyuan-gateway/internal/llm"
	"hunyuan-gateway/internal/metrics"
	"hunyuan-gateway/internal/sse"
)

// ToChunk reshapes an upstream event into an OpenAI chunk reported under
// the caller-facing model.
func ToChunk(ev *llm.UpstreamEvent, model string) llm.ChatCompletionChunk {
	chunk := llm.ChatCompletionChunk{
		ID:                ev.ID,
		Object:            llm.ObjectChunk,
		Created:           ev.Created,
		Model:             model,
		SystemFingerprint: ev.SystemFingerprint,
		Choices:           make([]llm.ChunkChoice, 0, len(ev.Choices)),
	}
	for _, ch := range ev.Choices {
		chunk.Choices = append(chunk.Choices, llm.ChunkChoice{
			Index:        ch.Index,
			Delta:        ch.Delta,
			FinishReason: ch.FinishReason,
		})
	}
	return chunk
}

// Stream copies events from r to dst as chat.completion.chunk frames, in
// arrival order, one frame per event. The [DONE] sentinel is forwarded and
// ends the copy; a stream that ends without it just stops. dst is flushed
// after every frame when it implements sse.Flusher.
//
// It returns the number of chunk frames written.
func Stream(ctx context.Context, r *Reader, dst io.Writer, model string) (int, error) {
	written := 0
	for {
		ev, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, err
		}

		if ev.Kind == EventDone {
			if err := sse.WriteDone(dst); err != nil {
				return written, fmt.Errorf("write done frame: %w", err)
			}
			metrics.StreamChunksTotal.WithLabelValues("done").Inc()
			return written, nil
		}

		payload, err := json.Marshal(ToChunk(ev.Data, model))
		if err != nil {
			return written, fmt.Errorf("marshal chunk: %w", err)
		}
		if err := sse.WriteData(dst, payload); err != nil {
			return written, fmt.Errorf("write chunk: %w", err)
		}
		written++
		metrics.StreamChunksTotal.WithLabelValues("chunk").Inc()
	}
}
