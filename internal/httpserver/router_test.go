package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap/zaptest"

	"hunyuan-gateway/internal/cache"
	"hunyuan-gateway/internal/handlers"
	"hunyuan-gateway/internal/llm"
	"hunyuan-gateway/internal/metrics"
)

var registerOnce sync.Once

type upstreamCall struct {
	auth    string
	model   string
	request llm.UpstreamRequest
}

type fakeUpstream struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []upstreamCall
	status int
	events []string
}

func newFakeUpstream(t *testing.T, events ...string) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{status: http.StatusOK, events: events}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.UpstreamRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.calls = append(f.calls, upstreamCall{
			auth:    r.Header.Get("Authorization"),
			model:   r.Header.Get("model"),
			request: req,
		})
		status, events := f.status, f.events
		f.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("quota exceeded"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, ev := range events {
			_, _ = io.WriteString(w, ev)
			flusher.Flush()
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeUpstream) lastCall(t *testing.T) upstreamCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("upstream was not called")
	}
	return f.calls[len(f.calls)-1]
}

func newGateway(t *testing.T, upstreamURL string) *httptest.Server {
	t.Helper()
	registerOnce.Do(metrics.Register)

	logger := zaptest.NewLogger(t)
	client, err := llm.NewClient(llm.Config{URL: upstreamURL, Timeout: 10 * time.Second}, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	translator := llm.NewTranslator(nil, "")
	chat := handlers.NewChatHandler(cache.NopExactCache{}, time.Minute, "vtest", translator, client, "")
	models := handlers.NewModelsHandler(translator, "tencent")

	r := chi.NewRouter()
	SetupRouter(r, logger, chat, models, Options{MaxBodyBytes: 64 * 1024, RequestTimeout: 5 * time.Second})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func openaiClient(baseURL, key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return openai.NewClientWithConfig(cfg)
}

var helloEvents = []string{
	"data: {\"id\":\"c1\",\"created\":1700000000,\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n",
	"data: {\"id\":\"c1\",\"created\":1700000000,\"choi",
	"ces\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n",
	"data: [DONE]\n\n",
}

func TestStreamWithOpenAIClient(t *testing.T) {
	upstream := newFakeUpstream(t, helloEvents...)
	gw := newGateway(t, upstream.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := openaiClient(gw.URL, "sk-test").CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    "hunyuan-turbos-latest",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "Say hello"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream: %v", err)
	}
	defer stream.Close()

	var content strings.Builder
	var finish openai.FinishReason
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if resp.Model != "hunyuan-turbos-latest" || resp.Object != "chat.completion.chunk" {
			t.Fatalf("unexpected chunk envelope: %#v", resp)
		}
		for _, ch := range resp.Choices {
			content.WriteString(ch.Delta.Content)
			if ch.FinishReason != "" {
				finish = ch.FinishReason
			}
		}
	}

	if content.String() != "Hello" || finish != openai.FinishReasonStop {
		t.Fatalf("unexpected stream result: %q %q", content.String(), finish)
	}

	call := upstream.lastCall(t)
	if call.auth != "Bearer sk-test" || call.model != "hunyuan-turbos-latest" {
		t.Fatalf("unexpected upstream headers: %#v", call)
	}
	if !call.request.Stream || len(call.request.QueryID) != 32 || len(call.request.Messages) != 1 {
		t.Fatalf("unexpected upstream body: %#v", call.request)
	}
}

func TestNonStreamDecodesAsOpenAIResponse(t *testing.T) {
	upstream := newFakeUpstream(t, helloEvents...)
	gw := newGateway(t, upstream.URL)

	for _, path := range []string{"/v1/chat/completions", "/chat/completions"} {
		resp, err := http.Post(gw.URL+path, "application/json",
			strings.NewReader(`{"stream":false,"messages":[{"role":"user","content":"Say hello"}]}`))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d: %s", path, resp.StatusCode, body)
		}
		var out openai.ChatCompletionResponse
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if out.Object != "chat.completion" || out.Model != llm.ModelT1 || len(out.Choices) != 1 {
			t.Fatalf("%s: unexpected response: %#v", path, out)
		}
		if out.Choices[0].Message.Content != "Hello" || out.Choices[0].FinishReason != openai.FinishReasonStop {
			t.Fatalf("%s: unexpected choice: %#v", path, out.Choices[0])
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: CORS header missing", path)
		}
	}

	if call := upstream.lastCall(t); call.auth != "" {
		t.Fatalf("no credential expected, got %q", call.auth)
	}
}

func TestUpstreamErrorReachesOpenAIClient(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.mu.Lock()
	upstream.status = http.StatusTooManyRequests
	upstream.mu.Unlock()
	gw := newGateway(t, upstream.URL)

	_, err := openaiClient(gw.URL, "sk-test").CreateChatCompletionStream(context.Background(), openai.ChatCompletionRequest{
		Model:    llm.ModelT1,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
		Stream:   true,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error should carry the upstream status: %v", err)
	}
}

func TestListModelsWithOpenAIClient(t *testing.T) {
	gw := newGateway(t, newFakeUpstream(t).URL)

	models, err := openaiClient(gw.URL, "").ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models.Models) != 2 {
		t.Fatalf("unexpected models: %#v", models.Models)
	}
	for i, id := range []string{llm.ModelT1, llm.ModelTurboS} {
		if models.Models[i].ID != id || models.Models[i].OwnedBy != "tencent" {
			t.Fatalf("model %d: %#v", i, models.Models[i])
		}
	}
}

func TestInvalidRequestIsRejectedBeforeUpstream(t *testing.T) {
	upstream := newFakeUpstream(t, helloEvents...)
	gw := newGateway(t, upstream.URL)

	resp, err := http.Post(gw.URL+"/v1/chat/completions", "application/json", strings.NewReader(`{"model":"x"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	if len(upstream.calls) != 0 {
		t.Fatalf("upstream must not be called")
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	gw := newGateway(t, newFakeUpstream(t, helloEvents...).URL)

	big := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 128*1024) + `"}]}`
	resp, err := http.Post(gw.URL+"/v1/chat/completions", "application/json", strings.NewReader(big))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestPreflightHealthAndMetrics(t *testing.T) {
	gw := newGateway(t, newFakeUpstream(t).URL)

	req, _ := http.NewRequest(http.MethodOptions, gw.URL+"/v1/chat/completions", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
		t.Fatalf("unexpected preflight: %d %v", resp.StatusCode, resp.Header)
	}

	resp, err = http.Get(gw.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected health: %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(gw.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "gateway_streaming_connections_active") {
		t.Fatalf("gateway metrics not exposed")
	}
}
