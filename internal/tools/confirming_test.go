package tools

import (
	"context"
	"testing"
	"time"

	"github.com/familyassistant/core/internal/config"
)

type fakeConfirm struct {
	allow bool
	err   error
	calls int
}

func (f *fakeConfirm) RequestConfirmation(ctx context.Context, toolName string, rendered string) (bool, error) {
	f.calls++
	return f.allow, f.err
}

func innerExecuted(result *Result) *stubProvider {
	return &stubProvider{
		names: []string{"danger"},
		execute: func(ctx context.Context, ec *ExecutionContext, name string, args map[string]any) (*Result, error) {
			return result, nil
		},
	}
}

func TestConfirmingProvider_UngatedToolPassesThrough(t *testing.T) {
	inner := innerExecuted(NewResult("ran"))
	cp := NewConfirmingProvider(inner, config.ExecApprovalCfg{Ask: "always"}, time.Second)

	res, err := cp.Execute(context.Background(), nil, "danger", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ForLLM != "ran" {
		t.Errorf("expected ungated tool to run without confirmation, got %q", res.ForLLM)
	}
}

func TestConfirmingProvider_GatedAlways_NoConfirmChannel(t *testing.T) {
	inner := innerExecuted(NewResult("ran"))
	cp := NewConfirmingProvider(inner, config.ExecApprovalCfg{Ask: "always"}, time.Second)
	cp.Gate("danger", nil)

	res, err := cp.Execute(context.Background(), &ExecutionContext{}, "danger", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("expected an error result when no confirmation channel is wired")
	}
}

func TestConfirmingProvider_GatedAlways_Approved(t *testing.T) {
	inner := innerExecuted(NewResult("ran"))
	cp := NewConfirmingProvider(inner, config.ExecApprovalCfg{Ask: "always"}, time.Second)
	cp.Gate("danger", func(args map[string]any) string { return "run danger?" })

	confirm := &fakeConfirm{allow: true}
	res, err := cp.Execute(context.Background(), &ExecutionContext{Confirm: confirm}, "danger", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ForLLM != "ran" {
		t.Errorf("ForLLM = %q, want ran", res.ForLLM)
	}
	if confirm.calls != 1 {
		t.Errorf("confirm calls = %d, want 1", confirm.calls)
	}
}

func TestConfirmingProvider_GatedAlways_Rejected(t *testing.T) {
	inner := innerExecuted(NewResult("ran"))
	cp := NewConfirmingProvider(inner, config.ExecApprovalCfg{Ask: "always"}, time.Second)
	cp.Gate("danger", nil)

	confirm := &fakeConfirm{allow: false}
	res, err := cp.Execute(context.Background(), &ExecutionContext{Confirm: confirm}, "danger", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("expected a rejection to surface as an error result")
	}
}

func TestConfirmingProvider_OnMiss_SkipsAllowlisted(t *testing.T) {
	inner := innerExecuted(NewResult("ran"))
	cp := NewConfirmingProvider(inner, config.ExecApprovalCfg{Ask: "on-miss", Allowlist: []string{"danger"}}, time.Second)
	cp.Gate("danger", nil)

	res, err := cp.Execute(context.Background(), &ExecutionContext{}, "danger", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ForLLM != "ran" {
		t.Errorf("expected allowlisted tool under on-miss to skip confirmation, got %q", res.ForLLM)
	}
}

func TestConfirmingProvider_Off_NeverPrompts(t *testing.T) {
	inner := innerExecuted(NewResult("ran"))
	cp := NewConfirmingProvider(inner, config.ExecApprovalCfg{Ask: "off"}, time.Second)
	cp.Gate("danger", nil)

	res, err := cp.Execute(context.Background(), &ExecutionContext{}, "danger", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ForLLM != "ran" {
		t.Errorf("ForLLM = %q, want ran", res.ForLLM)
	}
}
