package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"hunyuan-gateway/internal/cache"
	"hunyuan-gateway/internal/llm"
	"hunyuan-gateway/internal/metrics"
	"hunyuan-gateway/internal/transcoder"
	"hunyuan-gateway/pkg/logging/logging"
)

// ChatHandler holds dependencies for the chat completions endpoints.
type ChatHandler struct {
	Cache         cache.ExactCache
	CacheTTL      time.Duration
	VersionID     string
	DefaultAPIKey string

	translator *llm.Translator
	client     llm.Client
}

func NewChatHandler(
	c cache.ExactCache,
	ttl time.Duration,
	versionID string,
	translator *llm.Translator,
	client llm.Client,
	defaultAPIKey string,
) *ChatHandler {
	if c == nil {
		c = cache.NopExactCache{}
	}
	if versionID == "" {
		versionID = "v1"
	}
	return &ChatHandler{
		Cache:         c,
		CacheTTL:      ttl,
		VersionID:     versionID,
		DefaultAPIKey: defaultAPIKey,
		translator:    translator,
		client:        client,
	}
}

// ChatCompletion handles POST /v1/chat/completions and /chat/completions.
// The upstream is always asked for a stream; it is relayed chunk by chunk
// when the caller asked for one and folded into a single response otherwise.
func (h *ChatHandler) ChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRequestError(w, logger, err)
		return
	}

	in, err := llm.ParseInboundRequest(body)
	if err != nil {
		writeRequestError(w, logger, err)
		return
	}

	apiKey := resolveAPIKey(r.Header.Get("Authorization"), h.DefaultAPIKey)
	upReq := h.translator.Translate(in)
	callerModel := upReq.CallerModel

	if in.Model != "" && in.Model != upReq.Model {
		fields := []zap.Field{
			zap.String("requested_model", in.Model),
			zap.String("upstream_model", upReq.Model),
		}
		if s, ok := h.translator.SuggestModel(in.Model); ok {
			fields = append(fields, zap.String("suggestion", s))
		}
		logger.Debug("unknown model, using fallback", fields...)
	}

	logger = logger.With(
		zap.String("model_id", upReq.Model),
		zap.String("query_id", upReq.QueryID),
		zap.Bool("stream", in.Stream),
	)
	ctx = logging.WithLogger(ctx, logger)

	var cacheKey string
	if !in.Stream && cache.Enabled(h.Cache) {
		cacheKey = h.lookupKey(logger, in, callerModel, upReq.Model, apiKey)
		if cacheKey != "" {
			if cached, hit, err := h.Cache.Get(ctx, cacheKey); err != nil {
				logger.Warn("exact_cache_get_error", zap.Error(err))
			} else if hit {
				logger.Info("chat_completion",
					zap.Bool("cache_hit", true),
					zap.Duration("total_latency", time.Since(start)),
				)
				writeRawJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	stream, err := h.client.OpenStream(ctx, upReq, apiKey)
	if err != nil {
		logger.Warn("upstream unavailable", zap.Error(err))
		writeUpstreamError(w, err)
		return
	}
	defer stream.Close()

	reader := transcoder.NewReader(stream, logger)

	if in.Stream {
		h.relay(ctx, w, reader, callerModel, start)
		return
	}
	h.aggregate(ctx, w, reader, callerModel, cacheKey, start)
}

func (h *ChatHandler) lookupKey(logger *zap.Logger, in *llm.InboundRequest, callerModel, model, apiKey string) string {
	key, err := cache.BuildExactCacheKey(in, callerModel, model, apiKey, h.VersionID)
	if err != nil {
		logger.Warn("key_builder_error", zap.Error(err))
		return ""
	}
	return key.String()
}

// relay writes the event stream. Once the headers are out, failures can
// only end the stream early.
func (h *ChatHandler) relay(ctx context.Context, w http.ResponseWriter, reader *transcoder.Reader, model string, start time.Time) {
	logger := logging.L(ctx)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metrics.StreamingConnections.Inc()
	defer metrics.StreamingConnections.Dec()

	out := newFlushWriter(w)
	if err := out.Flush(); err != nil {
		logger.Warn("stream aborted", zap.Error(err), zap.Duration("total_latency", time.Since(start)))
		return
	}

	n, err := transcoder.Stream(ctx, reader, out, model)

	fields := []zap.Field{
		zap.Int("chunks", n),
		zap.Int("skipped", reader.Skipped()),
		zap.Duration("total_latency", time.Since(start)),
	}
	switch {
	case err == nil:
		logger.Info("chat_completion", fields...)
	case errors.Is(err, context.Canceled):
		logger.Info("client disconnected", fields...)
	default:
		logger.Warn("stream aborted", append(fields, zap.Error(err))...)
	}
}

func (h *ChatHandler) aggregate(
	ctx context.Context,
	w http.ResponseWriter,
	reader *transcoder.Reader,
	model, cacheKey string,
	start time.Time,
) {
	logger := logging.L(ctx)

	resp, err := transcoder.Aggregate(ctx, reader, model)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("client disconnected", zap.Duration("total_latency", time.Since(start)))
			return
		}
		logger.Error("aggregation failed", zap.Error(err))
		writeInternalError(w, err)
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("marshal_response_error", zap.Error(err))
		writeInternalError(w, err)
		return
	}

	if cacheKey != "" {
		if err := h.Cache.Set(ctx, cacheKey, payload, h.CacheTTL); err != nil {
			logger.Warn("exact_cache_set_error", zap.Error(err))
		}
	}

	logger.Info("chat_completion",
		zap.Bool("cache_hit", false),
		zap.Int("choices", len(resp.Choices)),
		zap.Int("events", reader.Events()),
		zap.Int("skipped", reader.Skipped()),
		zap.Duration("total_latency", time.Since(start)),
	)

	writeRawJSON(w, http.StatusOK, payload)
}

// flushWriter pushes every SSE frame to the client as soon as it is written.
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	return &flushWriter{w: w, rc: http.NewResponseController(w)}
}

func (f *flushWriter) Write(p []byte) (int, error) { return f.w.Write(p) }

func (f *flushWriter) Flush() error {
	if err := f.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
