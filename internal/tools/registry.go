package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is the local tool provider: tools are registered by struct
// literal at startup (no reflection-based auto-discovery, per §9's
// redesign note), with each tool's JSON Schema compiled once up front so
// a malformed argument set is rejected before the handler ever runs.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	schema map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		schema: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its Parameters as a JSON Schema. A
// nil/empty Parameters map is treated as "accepts any object" and skips
// compilation.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(t.Parameters) > 0 {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return fmt.Errorf("tool %s: marshal schema: %w", t.Name, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("tool %s: unmarshal schema: %w", t.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		res := "mem://" + t.Name + ".json"
		if err := compiler.AddResource(res, doc); err != nil {
			return fmt.Errorf("tool %s: add schema resource: %w", t.Name, err)
		}
		sch, err := compiler.Compile(res)
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
		}
		r.schema[t.Name] = sch
	}

	r.tools[t.Name] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

func (r *Registry) Describe(name string) (ToolDefinition, bool) {
	t, ok := r.Get(name)
	if !ok {
		return ToolDefinition{}, false
	}
	return ToProviderDef(t), true
}

// Execute validates args against the tool's compiled schema (if any) and
// invokes its handler.
func (r *Registry) Execute(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, ErrToolNotFound
	}

	r.mu.RLock()
	sch := r.schema[name]
	r.mu.RUnlock()
	if sch != nil {
		if err := sch.Validate(toAnyMap(args)); err != nil {
			return ErrorResult(fmt.Sprintf("invalid arguments for %s: %v", name, err)), nil
		}
	}

	return t.Handler(ctx, ec, args)
}

// toAnyMap normalizes a map[string]any for jsonschema.Validate, which
// expects the same shape json.Unmarshal would produce (no typed structs).
func toAnyMap(m map[string]any) any {
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}
