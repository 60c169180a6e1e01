// Package progress renders tracked action invocations as human-readable
// status lines for display alongside streamed assistant text.
package progress

import (
	"fmt"
	"sort"
	"time"

	"github.com/mossline/storepilot/internal/tracker"
)

// Stage is a message shown once an invocation has been running for at
// least After.
type Stage struct {
	After time.Duration
	Text  string
}

// Label describes how one action is presented while running and after
// it settles.
type Label struct {
	Running   string
	Completed string
	Failed    string
	Stages    []Stage
}

// Line is one rendered status row. Errored is set both for transport
// failures and for completed invocations whose outcome reports failure,
// so displays pick the error presentation from one flag.
type Line struct {
	ID      string
	Status  tracker.Status
	Errored bool
	Text    string
	Detail  string
}

// Renderer turns tracker snapshots into display lines.
type Renderer struct {
	labels map[string]Label
	now    func() time.Time
}

// NewRenderer builds a renderer over an action-name-to-label map.
// Actions without a label fall back to a generic presentation.
func NewRenderer(labels map[string]Label) *Renderer {
	return &Renderer{labels: labels, now: time.Now}
}

// DefaultLabels covers the standard business-automation actions.
func DefaultLabels() map[string]Label {
	return map[string]Label{
		"setup_store": {
			Running:   "Setting up your store",
			Completed: "Store created",
			Failed:    "Store setup failed",
			Stages: []Stage{
				{After: 3 * time.Second, Text: "Provisioning storefront"},
				{After: 8 * time.Second, Text: "Applying theme"},
			},
		},
		"configure_payment": {
			Running:   "Configuring payment methods",
			Completed: "Payments configured",
			Failed:    "Payment configuration failed",
		},
		"setup_inventory": {
			Running:   "Adding products to your catalog",
			Completed: "Catalog seeded",
			Failed:    "Catalog seeding failed",
			Stages: []Stage{
				{After: 5 * time.Second, Text: "Creating products"},
			},
		},
		"generate_legal_docs": {
			Running:   "Drafting legal documents",
			Completed: "Documents ready",
			Failed:    "Document generation failed",
			Stages: []Stage{
				{After: 10 * time.Second, Text: "Still writing, this can take a moment"},
			},
		},
		"create_product": {
			Running:   "Creating product",
			Completed: "Product created",
			Failed:    "Product creation failed",
		},
		"delete_product": {
			Running:   "Deleting product",
			Completed: "Product deleted",
			Failed:    "Product deletion failed",
		},
		"delete_all_products": {
			Running:   "Clearing the catalog",
			Completed: "Catalog cleared",
			Failed:    "Catalog clear failed",
		},
	}
}

func (r *Renderer) label(name string) Label {
	if l, ok := r.labels[name]; ok {
		return l
	}
	return Label{
		Running:   fmt.Sprintf("Running %s", name),
		Completed: fmt.Sprintf("%s finished", name),
		Failed:    fmt.Sprintf("%s failed", name),
	}
}

// stageText picks the deepest stage whose threshold has elapsed.
func stageText(l Label, elapsed time.Duration) string {
	text := ""
	stages := append([]Stage(nil), l.Stages...)
	sort.Slice(stages, func(i, j int) bool { return stages[i].After < stages[j].After })
	for _, s := range stages {
		if elapsed >= s.After {
			text = s.Text
		}
	}
	return text
}

// Render produces one line per tracked invocation, in arrival order.
// Failed invocations carry the outcome message as detail.
func (r *Renderer) Render(s tracker.State) []Line {
	lines := make([]Line, 0, len(s.Invocations))
	for _, inv := range s.Invocations {
		l := r.label(inv.Action)
		line := Line{ID: inv.ID, Status: inv.Status}

		switch inv.Status {
		case tracker.StatusRunning:
			line.Text = l.Running
			if st := stageText(l, r.now().Sub(inv.StartedAt)); st != "" {
				line.Detail = st
			}
		case tracker.StatusCompleted:
			// A completed invocation may still carry a failure outcome;
			// it gets the error presentation without being transport-failed.
			if inv.Outcome != nil && !inv.Outcome.Success {
				line.Errored = true
				line.Text = l.Failed
			} else {
				line.Text = l.Completed
			}
			if inv.Outcome != nil && inv.Outcome.Message != "" {
				line.Detail = inv.Outcome.Message
			}
		case tracker.StatusFailed:
			line.Errored = true
			line.Text = l.Failed
			if inv.Outcome != nil && inv.Outcome.Message != "" {
				line.Detail = inv.Outcome.Message
			}
		}
		lines = append(lines, line)
	}
	return lines
}
