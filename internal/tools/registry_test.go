package tools

import (
	"context"
	"testing"
)

func echoTool() Tool {
	return Tool{
		Name:        "echo",
		Description: "echoes msg",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"msg": map[string]any{"type": "string"}},
			"required":   []any{"msg"},
		},
		Handler: func(ctx context.Context, ec *ExecutionContext, args map[string]any) (*Result, error) {
			return NewResult("echo: " + args["msg"].(string)), nil
		},
	}
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := r.Execute(context.Background(), nil, "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ForLLM != "echo: hi" {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestRegistry_Execute_SchemaRejectsMissingRequired(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := r.Execute(context.Background(), nil, "echo", map[string]any{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("expected a schema validation error result")
	}
}

func TestRegistry_Execute_UnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), nil, "nope", nil)
	if err != ErrToolNotFound {
		t.Errorf("error = %v, want ErrToolNotFound", err)
	}
}

func TestRegistry_ListAndDescribe(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoTool())

	names := r.List()
	if len(names) != 1 || names[0] != "echo" {
		t.Fatalf("List() = %v", names)
	}

	def, ok := r.Describe("echo")
	if !ok {
		t.Fatal("Describe() ok = false")
	}
	if def.Function.Name != "echo" {
		t.Errorf("Function.Name = %q", def.Function.Name)
	}

	if _, ok := r.Describe("missing"); ok {
		t.Error("expected Describe(missing) to report ok=false")
	}
}

func TestRegistry_NoParameters_SkipsSchemaCompilation(t *testing.T) {
	r := NewRegistry()
	bare := Tool{
		Name: "bare",
		Handler: func(ctx context.Context, ec *ExecutionContext, args map[string]any) (*Result, error) {
			return NewResult("ok"), nil
		},
	}
	if err := r.Register(bare); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	res, err := r.Execute(context.Background(), nil, "bare", map[string]any{"anything": 1})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Errorf("expected no schema to reject arbitrary args, got error result: %s", res.ForLLM)
	}
}
