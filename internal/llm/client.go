package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"hunyuan-gateway/internal/metrics"
)

const (
	maxRequestSize = 2 * 1024 * 1024 // 2MB total JSON payload
	maxErrorBody   = 64 * 1024
)

// Client opens the upstream event stream for a translated request.
type Client interface {
	// OpenStream posts req and returns the raw event stream. The caller
	// must close it. apiKey may be empty, in which case no credential is
	// sent. A non-2xx answer is returned as *UpstreamHTTPError.
	OpenStream(ctx context.Context, req *UpstreamRequest, apiKey string) (io.ReadCloser, error)
}

func (c *client) OpenStream(parentCtx context.Context, req *UpstreamRequest, apiKey string) (io.ReadCloser, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("upstream: request is nil")
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}
	if len(bodyBytes) > maxRequestSize {
		return nil, fmt.Errorf(
			"upstream: request too large (%d bytes, max %d)",
			len(bodyBytes), maxRequestSize,
		)
	}

	// Released when the caller closes the stream or on any error below.
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("upstream: build HTTP request: %w", err)
	}
	c.setHeaders(httpReq, req.Model, apiKey)

	c.logger.Debug("upstream request starting",
		zap.String("model", req.Model),
		zap.String("query_id", req.QueryID),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("credential", apiKey != ""),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		metrics.UpstreamRequestsTotal.WithLabelValues(req.Model, "error").Inc()
		c.logger.Error("upstream request failed",
			zap.String("model", req.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("upstream: %w", err)
	}

	metrics.UpstreamLatencySeconds.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	metrics.UpstreamRequestsTotal.WithLabelValues(req.Model, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()

		c.logger.Error("upstream error",
			zap.String("model", req.Model),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return nil, &UpstreamHTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("upstream stream opened",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (c *client) setHeaders(r *http.Request, model, apiKey string) {
	h := r.Header
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("User-Agent", c.cfg.UserAgent)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("model", model)

	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	if c.cfg.Host != "" {
		r.Host = c.cfg.Host
	}

	optional := map[string]string{
		"polaris":   c.cfg.Polaris,
		"Wsid":      c.cfg.WSID,
		"staffname": c.cfg.StaffName,
		"Origin":    c.cfg.Origin,
		"Referer":   c.cfg.Referer,
	}
	for k, v := range optional {
		if v != "" {
			h.Set(k, v)
		}
	}
}

// cancelOnClose ties the request context to the lifetime of the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
