package provider

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// anthropicSSEHandler replays event/data frame pairs the way the
// Messages API streams them.
func anthropicSSEHandler(events [][2]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[0], ev[1])
		}
	}
}

func TestAnthropicStreamTextAndStopReason(t *testing.T) {
	srv := httptest.NewServer(anthropicSSEHandler([][2]string{
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{ID: "ant", Endpoint: srv.URL}, zap.NewNop())
	chunks := streamAll(t, p, &ChatRequest{Model: "claude-sonnet-4-20250514"})

	if chunks[0].Content != "Hi" || chunks[1].Content != " there" {
		t.Errorf("text chunks = %+v", chunks[:2])
	}
	final := chunks[len(chunks)-1]
	if !final.Done || final.FinishReason != "stop" {
		t.Errorf("final chunk = %+v, want normalized stop", final)
	}
}

func TestAnthropicStreamAssemblesToolUse(t *testing.T) {
	srv := httptest.NewServer(anthropicSSEHandler([][2]string{
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"setup_store"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"store_name\":"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":" \"Acme\"}"}}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}))
	defer srv.Close()

	p := NewAnthropicProvider(ProviderConfig{ID: "ant", Endpoint: srv.URL}, zap.NewNop())
	chunks := streamAll(t, p, &ChatRequest{Model: "claude-sonnet-4-20250514"})

	final := chunks[len(chunks)-1]
	if !final.Done {
		t.Fatalf("final chunk = %+v", final)
	}
	if final.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q, want normalized tool_calls", final.FinishReason)
	}
	if len(final.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls", len(final.ToolCalls))
	}
	tc := final.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Function.Name != "setup_store" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments != `{"store_name": "Acme"}` {
		t.Errorf("assembled arguments = %q", tc.Function.Arguments)
	}
}

func TestNormalizeStopReason(t *testing.T) {
	cases := map[string]string{
		"tool_use":      "tool_calls",
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "max_tokens",
	}
	for in, want := range cases {
		if got := normalizeStopReason(in); got != want {
			t.Errorf("normalizeStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}
