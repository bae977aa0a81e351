package tools

import (
	"context"
	"testing"

	"github.com/familyassistant/core/internal/providers"
)

type stubProvider struct {
	names   []string
	execute func(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error)
}

func (s *stubProvider) List() []string { return s.names }

func (s *stubProvider) Describe(name string) (ToolDefinition, bool) {
	for _, n := range s.names {
		if n == name {
			return ToolDefinition{Type: "function", Function: providers.ToolFunctionSchema{Name: name}}, true
		}
	}
	return ToolDefinition{}, false
}

func (s *stubProvider) Execute(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
	return s.execute(ctx, ec, name, args)
}

func TestCompositeProvider_FallsThroughOnNotFound(t *testing.T) {
	first := &stubProvider{
		names: []string{"a"},
		execute: func(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
			return nil, ErrToolNotFound
		},
	}
	second := &stubProvider{
		names: []string{"b"},
		execute: func(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
			return NewResult("from second"), nil
		},
	}
	c := NewCompositeProvider(first, second)

	res, err := c.Execute(context.Background(), nil, "b", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ForLLM != "from second" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestCompositeProvider_AllNotFound(t *testing.T) {
	p := &stubProvider{execute: func(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
		return nil, ErrToolNotFound
	}}
	c := NewCompositeProvider(p, p)
	_, err := c.Execute(context.Background(), nil, "missing", nil)
	if err != ErrToolNotFound {
		t.Errorf("error = %v, want ErrToolNotFound", err)
	}
}

func TestCompositeProvider_List_Dedupes(t *testing.T) {
	p1 := &stubProvider{names: []string{"a", "b"}}
	p2 := &stubProvider{names: []string{"b", "c"}}
	c := NewCompositeProvider(p1, p2)

	names := c.List()
	if len(names) != 3 {
		t.Fatalf("List() = %v, want 3 unique names", names)
	}
}

func TestCompositeProvider_FirstProviderWins(t *testing.T) {
	first := &stubProvider{
		names: []string{"dup"},
		execute: func(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
			return NewResult("first"), nil
		},
	}
	second := &stubProvider{
		names: []string{"dup"},
		execute: func(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
			return NewResult("second"), nil
		},
	}
	c := NewCompositeProvider(first, second)
	res, err := c.Execute(context.Background(), nil, "dup", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ForLLM != "first" {
		t.Errorf("ForLLM = %q, want first (name collision should favor provider order)", res.ForLLM)
	}
}
