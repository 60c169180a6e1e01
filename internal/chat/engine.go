// Package chat drives streamed conversational turns against an LLM
// provider, dispatching requested actions and continuing the
// conversation with their results until the model stops asking.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossline/storepilot/internal/action"
	"github.com/mossline/storepilot/internal/provider"
	"github.com/mossline/storepilot/internal/tracker"
	"go.uber.org/zap"
)

// DefaultMaxAutoSteps bounds how many times a turn may automatically
// continue after resolving actions. The initial turn does not count.
const DefaultMaxAutoSteps = 10

// Sink receives turn events as they happen, in order. The engine calls
// it from a single goroutine.
type Sink interface {
	TextDelta(text string)
	ActionStarted(id, name string)
	ActionResolved(id string, out action.Outcome)
	Finished(reason string)
	Failed(err error)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) TextDelta(string)                     {}
func (NopSink) ActionStarted(string, string)         {}
func (NopSink) ActionResolved(string, action.Outcome) {}
func (NopSink) Finished(string)                      {}
func (NopSink) Failed(error)                         {}

// Result summarizes a completed run.
type Result struct {
	Content      string
	FinishReason string
	Steps        int
	Messages     []provider.Message
}

// Engine orchestrates one conversation against a provider and an action
// registry.
type Engine struct {
	router       *provider.Router
	registry     *action.Registry
	maxAutoSteps int
	logger       *zap.Logger
}

// NewEngine wires a chat engine. maxAutoSteps <= 0 selects the default
// bound.
func NewEngine(router *provider.Router, registry *action.Registry, maxAutoSteps int, logger *zap.Logger) *Engine {
	if maxAutoSteps <= 0 {
		maxAutoSteps = DefaultMaxAutoSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		router:       router,
		registry:     registry,
		maxAutoSteps: maxAutoSteps,
		logger:       logger,
	}
}

// turnOutcome carries what one streamed turn produced.
type turnOutcome struct {
	content      string
	toolCalls    []provider.ToolCall
	finishReason string
}

// Run executes the turn loop: stream a response, dispatch any requested
// actions, feed their results back, and continue until the model
// finishes with plain text or the auto-continuation bound is reached.
// Every event is folded into tr and delivered to sink before the next
// one is processed.
func (e *Engine) Run(ctx context.Context, req *provider.ChatRequest, caller action.Caller, tr *tracker.Tracker, sink Sink) (*Result, error) {
	if sink == nil {
		sink = NopSink{}
	}
	if len(req.Tools) == 0 {
		req.Tools = e.registry.Definitions()
	}

	res := &Result{Messages: req.Messages}

	for step := 0; ; step++ {
		turn, err := e.streamTurn(ctx, req, tr, sink)
		if err != nil {
			tr.Apply(tracker.TransportFailed{Err: err, At: time.Now()})
			sink.Failed(err)
			return nil, err
		}

		res.Content = turn.content
		res.FinishReason = turn.finishReason
		res.Steps = step

		if len(turn.toolCalls) == 0 || turn.finishReason != "tool_calls" {
			tr.Apply(tracker.TurnFinished{Reason: turn.finishReason})
			sink.Finished(turn.finishReason)
			break
		}

		req.Messages = append(req.Messages, provider.Message{
			Role:      "assistant",
			Content:   turn.content,
			ToolCalls: turn.toolCalls,
		})

		// Actions run one at a time, each result committed to the
		// message log before the next dispatch.
		for _, tc := range turn.toolCalls {
			if tc.ID == "" {
				e.logger.Warn("dropping tool call without id",
					zap.String("action", tc.Function.Name))
				continue
			}

			tr.Apply(tracker.InvocationStarted{
				ID:     tc.ID,
				Action: tc.Function.Name,
				At:     time.Now(),
			})
			sink.ActionStarted(tc.ID, tc.Function.Name)

			out := e.registry.Invoke(ctx, tc.Function.Name, tc.Function.Arguments, caller)

			tr.Apply(tracker.InvocationEnded{ID: tc.ID, Outcome: out, At: time.Now()})
			sink.ActionResolved(tc.ID, out)

			req.Messages = append(req.Messages, provider.Message{
				Role:       "tool",
				Content:    encodeOutcome(out),
				ToolCallID: tc.ID,
			})
		}

		if step+1 > e.maxAutoSteps {
			e.logger.Warn("auto-continuation bound reached",
				zap.Int("steps", step+1))
			res.FinishReason = "max_steps"
			tr.Apply(tracker.TurnFinished{Reason: "max_steps"})
			sink.Finished("max_steps")
			break
		}

		e.logger.Debug("continuing after actions",
			zap.Int("step", step+1),
			zap.Int("actions", len(turn.toolCalls)))
	}

	res.Messages = req.Messages
	return res, nil
}

// streamTurn consumes one provider stream, forwarding text as it
// arrives and collecting the assembled tool calls from the terminal
// chunk.
func (e *Engine) streamTurn(ctx context.Context, req *provider.ChatRequest, tr *tracker.Tracker, sink Sink) (*turnOutcome, error) {
	ch, err := e.router.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	turn := &turnOutcome{}
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Content != "" {
			turn.content += chunk.Content
			tr.Apply(tracker.TextDelta{Text: chunk.Content})
			sink.TextDelta(chunk.Content)
		}
		if chunk.Done {
			turn.toolCalls = chunk.ToolCalls
			turn.finishReason = chunk.FinishReason
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if turn.finishReason == "" && len(turn.toolCalls) == 0 && turn.content == "" {
		return nil, fmt.Errorf("stream closed without producing a turn")
	}
	return turn, nil
}

// encodeOutcome serializes an action outcome for the tool result
// message. Failures carry the kind so the model can react to them.
func encodeOutcome(out action.Outcome) string {
	payload := map[string]interface{}{
		"success": out.Success,
		"message": out.Message,
	}
	if out.Data != nil {
		payload["data"] = out.Data
	}
	if !out.Success {
		payload["error_kind"] = string(out.ErrorKind)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"message":%q}`, err.Error())
	}
	return string(b)
}
