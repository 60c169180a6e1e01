package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// sseHandler replays the given SSE data payloads then [DONE].
func sseHandler(payloads []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func streamAll(t *testing.T, p Provider, req *ChatRequest) []*StreamChunk {
	t.Helper()
	ch, err := p.ChatStream(context.Background(), req)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	var chunks []*StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestOpenAIStreamTextDeltas(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL}, zap.NewNop())
	chunks := streamAll(t, p, &ChatRequest{Model: "gpt-4o"})

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if chunks[0].Content != "Hel" || chunks[1].Content != "lo" {
		t.Errorf("text chunks = %+v", chunks[:2])
	}
	final := chunks[2]
	if !final.Done || final.FinishReason != "stop" {
		t.Errorf("final chunk = %+v", final)
	}
}

func TestOpenAIStreamAssemblesToolCallFragments(t *testing.T) {
	// Arguments for one call arrive split across three deltas; a second
	// call interleaves at a different index.
	srv := httptest.NewServer(sseHandler([]string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"setup_store","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"store_"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"configure_payment","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"name\": \"Acme\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL}, zap.NewNop())
	chunks := streamAll(t, p, &ChatRequest{Model: "gpt-4o"})

	final := chunks[len(chunks)-1]
	if !final.Done || final.FinishReason != "tool_calls" {
		t.Fatalf("final chunk = %+v", final)
	}
	if len(final.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls", len(final.ToolCalls))
	}

	a := final.ToolCalls[0]
	if a.ID != "call_a" || a.Function.Name != "setup_store" {
		t.Errorf("call a = %+v", a)
	}
	if a.Function.Arguments != `{"store_name": "Acme"}` {
		t.Errorf("assembled arguments = %q", a.Function.Arguments)
	}
	if final.ToolCalls[1].ID != "call_b" {
		t.Errorf("call b = %+v", final.ToolCalls[1])
	}

	// No chunk before the terminal one may expose tool calls.
	for _, c := range chunks[:len(chunks)-1] {
		if len(c.ToolCalls) > 0 {
			t.Error("partial tool call leaked mid-stream")
		}
	}
}

func TestOpenAIStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{ID: "oai", Endpoint: srv.URL}, zap.NewNop())
	if _, err := p.ChatStream(context.Background(), &ChatRequest{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
