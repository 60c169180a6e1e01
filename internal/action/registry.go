package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mossline/storepilot/internal/provider"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// Registry holds the callable actions. Action names are globally unique
// within a registry; re-registration overwrites.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	defs    map[string]*Definition
	schemas map[string]*jsonschema.Schema
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		defs:    make(map[string]*Definition),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a definition, compiling its input schema. Registering a
// name twice replaces the earlier definition in place.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if def.Execute == nil {
		return fmt.Errorf("action %s: execute routine is required", def.Name)
	}

	var compiled *jsonschema.Schema
	if def.Parameters != nil {
		var err error
		compiled, err = compileSchema(def.Name, def.Parameters)
		if err != nil {
			return fmt.Errorf("action %s: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	d := def
	r.defs[def.Name] = &d
	r.schemas[def.Name] = compiled
	r.logger.Debug("registered action", zap.String("name", def.Name))
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Definitions returns tool declarations for the model request, in
// registration order.
func (r *Registry) Definitions() []provider.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]provider.Tool, 0, len(r.order))
	for _, name := range r.order {
		d := r.defs[name]
		params := d.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		tools = append(tools, provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

// Invoke validates rawArgs against the action's input schema and runs its
// execute routine. Expected failures come back as failure outcomes; a panic
// inside the routine is caught here and downgraded to an execution-failure
// outcome carrying the panic message. Invoke never returns an error.
func (r *Registry) Invoke(ctx context.Context, name, rawArgs string, caller Caller) (out Outcome) {
	d, ok := r.Get(name)
	if !ok {
		return Fail(KindExecutionFailure, fmt.Sprintf("unknown action %q", name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("action panicked",
				zap.String("action", name),
				zap.Any("panic", rec))
			out = Fail(KindExecutionFailure, fmt.Sprintf("action %s failed: %v", name, rec))
		}
	}()

	if strings.TrimSpace(rawArgs) == "" {
		rawArgs = "{}"
	}

	r.mu.RLock()
	compiled := r.schemas[name]
	r.mu.RUnlock()

	if compiled != nil {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(rawArgs))
		if err != nil {
			return Fail(KindInvalidInput, fmt.Sprintf("arguments are not valid JSON: %v", err))
		}
		if err := compiled.Validate(doc); err != nil {
			return Fail(KindInvalidInput, validationMessage(err))
		}
	}

	var input map[string]interface{}
	if err := json.Unmarshal([]byte(rawArgs), &input); err != nil {
		return Fail(KindInvalidInput, fmt.Sprintf("arguments are not a JSON object: %v", err))
	}

	return d.Execute(ctx, input, caller)
}

func compileSchema(name string, params map[string]interface{}) (*jsonschema.Schema, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := "storepilot://actions/" + name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// validationMessage flattens a jsonschema validation error into a single
// human-readable line for the failure outcome.
func validationMessage(err error) string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	leaves := collectLeaves(verr)
	if len(leaves) == 0 {
		return verr.Error()
	}
	return "invalid arguments: " + strings.Join(leaves, "; ")
}

func collectLeaves(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, collectLeaves(c)...)
	}
	return out
}
