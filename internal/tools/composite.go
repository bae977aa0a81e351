package tools

import (
	"context"
	"errors"
)

// CompositeProvider tries each of its providers in order, falling through
// to the next on ErrToolNotFound — local tools normally precede the MCP
// provider so a name collision resolves to the built-in implementation.
type CompositeProvider struct {
	providers []Provider
}

func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	return &CompositeProvider{providers: providers}
}

func (c *CompositeProvider) List() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range c.providers {
		for _, n := range p.List() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

func (c *CompositeProvider) Describe(name string) (ToolDefinition, bool) {
	for _, p := range c.providers {
		if def, ok := p.Describe(name); ok {
			return def, true
		}
	}
	return ToolDefinition{}, false
}

func (c *CompositeProvider) Execute(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
	for _, p := range c.providers {
		res, err := p.Execute(ctx, ec, name, args)
		if errors.Is(err, ErrToolNotFound) {
			continue
		}
		return res, err
	}
	return nil, ErrToolNotFound
}
