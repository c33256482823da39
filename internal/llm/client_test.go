package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	if _, err := NewClient(Config{URL: "ftp://example.com"}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected scheme validation error, got nil")
	}
}

func TestOpenStreamSendsUpstreamRequest(t *testing.T) {
	t.Parallel()

	var gotReq map[string]any
	var gotHeaders http.Header
	var gotHost string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/aide/api/v2/triton_image/demo_text_chat/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		gotHeaders = r.Header.Clone()
		gotHost = r.Host
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\"}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		URL:       srv.URL + "/aide/api/v2/triton_image/demo_text_chat/",
		Host:      "llm.example.test",
		StaffName: "staff",
		WSID:      "10697",
		Polaris:   "stream-server",
		Origin:    "https://llm.example.test",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	req := NewTranslator(nil, "").Translate(&InboundRequest{
		Model:    ModelTurboS,
		Stream:   false,
		Messages: []ChatMessage{{Role: RoleUser, Content: "ping", ReasoningContent: "r"}},
	})

	body, err := client.OpenStream(context.Background(), req, "test-key")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if err := body.Close(); err != nil {
		t.Fatalf("close stream: %v", err)
	}

	if string(raw) != "data: {\"id\":\"1\"}\n\ndata: [DONE]\n\n" {
		t.Fatalf("stream bytes were altered: %q", raw)
	}

	if gotReq["stream"] != true {
		t.Fatalf("upstream must always stream, got %v", gotReq["stream"])
	}
	if gotReq["model"] != ModelTurboS {
		t.Fatalf("unexpected model: %v", gotReq["model"])
	}
	if id, _ := gotReq["query_id"].(string); len(id) != 32 {
		t.Fatalf("unexpected query_id: %v", gotReq["query_id"])
	}
	if gotReq["stream_moderation"] != true || gotReq["enable_enhancement"] != false {
		t.Fatalf("unexpected flags: %v", gotReq)
	}
	if _, ok := gotReq["CallerModel"]; ok {
		t.Fatalf("internal fields must not be serialized: %v", gotReq)
	}
	msgs, _ := gotReq["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("unexpected messages: %v", gotReq["messages"])
	}
	msg := msgs[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "ping" || msg["reasoning_content"] != "r" {
		t.Fatalf("unexpected message: %v", msg)
	}

	checks := map[string]string{
		"Authorization": "Bearer test-key",
		"Content-Type":  "application/json",
		"Model":         ModelTurboS,
		"Polaris":       "stream-server",
		"Wsid":          "10697",
		"Staffname":     "staff",
		"Origin":        "https://llm.example.test",
	}
	for k, want := range checks {
		if got := gotHeaders.Get(k); got != want {
			t.Fatalf("header %s = %q, want %q", k, got, want)
		}
	}
	if gotHeaders.Get("Referer") != "" {
		t.Fatalf("empty optional headers should not be sent")
	}
	if gotHost != "llm.example.test" {
		t.Fatalf("unexpected Host: %q", gotHost)
	}
}

func TestOpenStreamWithoutCredential(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("no Authorization expected, got %q", auth)
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	body, err := client.OpenStream(context.Background(), &UpstreamRequest{Model: ModelT1}, "")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	body.Close()
}

func TestOpenStreamUpstreamHTTPError(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.OpenStream(context.Background(), &UpstreamRequest{Model: ModelT1}, "k")

	var herr *UpstreamHTTPError
	if !errors.As(err, &herr) {
		t.Fatalf("expected *UpstreamHTTPError, got %v", err)
	}
	if herr.StatusCode != http.StatusTooManyRequests || herr.Body != "slow down" {
		t.Fatalf("unexpected error: %#v", herr)
	}
	if herr.Error() != "Hunyuan API error: 429 - slow down" {
		t.Fatalf("unexpected message: %s", herr.Error())
	}
	if calls != 1 {
		t.Fatalf("upstream must not be retried, got %d calls", calls)
	}
}

func TestOpenStreamCancelledByCaller(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Config{URL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	ctx, cancel := context.WithCancel(context.Background())
	body, err := client.OpenStream(ctx, &UpstreamRequest{Model: ModelT1}, "")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer body.Close()

	buf := make([]byte, 64)
	if _, err := body.Read(buf); err != nil {
		t.Fatalf("first read: %v", err)
	}

	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(body)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected read to fail after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not unblock after cancellation")
	}
}

func TestOpenStreamTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(Config{URL: url}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer closeClient(client)

	_, err = client.OpenStream(context.Background(), &UpstreamRequest{Model: ModelT1}, "")
	if err == nil || !strings.HasPrefix(err.Error(), "upstream:") {
		t.Fatalf("expected transport error, got %v", err)
	}
	var herr *UpstreamHTTPError
	if errors.As(err, &herr) {
		t.Fatalf("transport errors are not HTTP errors")
	}
}

func closeClient(c Client) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
