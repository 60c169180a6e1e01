package progress

import (
	"testing"
	"time"

	"github.com/mossline/storepilot/internal/action"
	"github.com/mossline/storepilot/internal/tracker"
)

func fixedClock(r *Renderer, at time.Time) { r.now = func() time.Time { return at } }

func TestRenderRunningUsesLabelAndStage(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRenderer(DefaultLabels())
	fixedClock(r, start.Add(4*time.Second))

	lines := r.Render(tracker.State{Invocations: []tracker.Invocation{{
		ID: "c1", Action: "setup_store", Status: tracker.StatusRunning, StartedAt: start,
	}}})

	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].Text != "Setting up your store" {
		t.Errorf("text = %q", lines[0].Text)
	}
	if lines[0].Detail != "Provisioning storefront" {
		t.Errorf("detail = %q, want first stage", lines[0].Detail)
	}

	// Past the second threshold the deeper stage wins.
	fixedClock(r, start.Add(9*time.Second))
	lines = r.Render(tracker.State{Invocations: []tracker.Invocation{{
		ID: "c1", Action: "setup_store", Status: tracker.StatusRunning, StartedAt: start,
	}}})
	if lines[0].Detail != "Applying theme" {
		t.Errorf("detail = %q, want second stage", lines[0].Detail)
	}
}

func TestRenderTransportFailureCarriesOutcomeMessage(t *testing.T) {
	out := action.Fail(action.KindTransport, "stream interrupted before the action resolved")
	r := NewRenderer(DefaultLabels())

	lines := r.Render(tracker.State{Invocations: []tracker.Invocation{{
		ID: "c1", Action: "create_product", Status: tracker.StatusFailed, Outcome: &out,
	}}})

	if lines[0].Text != "Product creation failed" {
		t.Errorf("text = %q", lines[0].Text)
	}
	if !lines[0].Errored {
		t.Error("transport failure not marked errored")
	}
	if lines[0].Detail != out.Message {
		t.Errorf("detail = %q", lines[0].Detail)
	}
}

func TestRenderCompletedWithFailureOutcome(t *testing.T) {
	// The tracker settles resolved invocations as completed even when
	// the outcome reports failure; the renderer must still show the
	// error presentation.
	out := action.Fail(action.KindMissingCredential, "No Shopify store is connected")
	r := NewRenderer(DefaultLabels())

	lines := r.Render(tracker.State{Invocations: []tracker.Invocation{{
		ID: "c1", Action: "create_product", Status: tracker.StatusCompleted, Outcome: &out,
	}}})

	if lines[0].Text != "Product creation failed" {
		t.Errorf("text = %q", lines[0].Text)
	}
	if !lines[0].Errored {
		t.Error("failure outcome not marked errored")
	}
	if lines[0].Detail != out.Message {
		t.Errorf("detail = %q", lines[0].Detail)
	}

	ok := action.OK("Created product", nil)
	lines = r.Render(tracker.State{Invocations: []tracker.Invocation{{
		ID: "c2", Action: "create_product", Status: tracker.StatusCompleted, Outcome: &ok,
	}}})
	if lines[0].Errored || lines[0].Text != "Product created" {
		t.Errorf("success line = %+v", lines[0])
	}
}

func TestRenderUnknownActionFallsBack(t *testing.T) {
	r := NewRenderer(nil)
	lines := r.Render(tracker.State{Invocations: []tracker.Invocation{{
		ID: "c1", Action: "mystery", Status: tracker.StatusCompleted,
	}}})
	if lines[0].Text != "mystery finished" {
		t.Errorf("text = %q", lines[0].Text)
	}
}

func TestRenderPreservesOrder(t *testing.T) {
	r := NewRenderer(DefaultLabels())
	lines := r.Render(tracker.State{Invocations: []tracker.Invocation{
		{ID: "a", Action: "setup_store", Status: tracker.StatusCompleted},
		{ID: "b", Action: "configure_payment", Status: tracker.StatusRunning},
	}})
	if lines[0].ID != "a" || lines[1].ID != "b" {
		t.Errorf("order = %s, %s", lines[0].ID, lines[1].ID)
	}
}
