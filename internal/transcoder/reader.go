package transcoder

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"hunyuan-gateway/internal/metrics"
	"hunyuan-gateway/internal/sse"
)

const logPayloadLimit = 200

// Reader is a pull iterator over the decoded events of one upstream stream.
// It yields EventData and EventDone only; ignored frames and frames that
// fail to decode are skipped. Like the Framer it wraps, it is single-pass.
type Reader struct {
	framer *sse.Framer
	logger *zap.Logger

	done    bool
	events  int
	skipped int
}

func NewReader(src io.Reader, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		framer: sse.NewFramer(src),
		logger: logger,
	}
}

// Next returns the next event. It returns io.EOF after the [DONE] sentinel
// has been returned or once the upstream stream ends, and ctx.Err() when
// the caller has gone away.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	for {
		if r.done {
			return Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		frame, err := r.framer.Next()
		if err != nil {
			r.done = true
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			// A cancelled request surfaces as a body read error.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			return Event{}, err
		}

		ev, err := Decode(frame)
		if err != nil {
			var derr *DecodeError
			if errors.As(err, &derr) {
				r.skipped++
				metrics.DecodeErrorsTotal.Inc()
				r.logger.Warn("skipping malformed upstream event",
					zap.Error(derr.Err),
					zap.String("payload", truncate(derr.Payload, logPayloadLimit)),
				)
				continue
			}
			return Event{}, err
		}

		switch ev.Kind {
		case EventIgnored:
			continue
		case EventDone:
			r.done = true
		default:
			r.events++
		}
		return ev, nil
	}
}

// Events is the number of data events returned so far.
func (r *Reader) Events() int { return r.events }

// Skipped is the number of malformed frames dropped so far.
func (r *Reader) Skipped() int { return r.skipped }

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
