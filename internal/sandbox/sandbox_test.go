package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalArithmeticAndControlFlow(t *testing.T) {
	script := `
def main():
    total = 0
    for i in range(5):
        if i % 2 == 0:
            total = total + i
        else:
            continue
    return total
`
	sb := New(nil, Policy{})
	result, err := sb.Eval(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), result)
}

func TestEvalFloorDivision(t *testing.T) {
	script := `
def main():
    return 7 // 2
`
	sb := New(nil, Policy{})
	result, err := sb.Eval(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result)
}

func TestEvalUsesGlobalVars(t *testing.T) {
	script := `
def main():
    if event["type"] == "message":
        return True
    return False
`
	sb := New(nil, Policy{})
	result, err := sb.Eval(context.Background(), script, map[string]any{
		"event": map[string]any{"type": "message"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRejectsWhileLoop(t *testing.T) {
	script := `
def main():
    while True:
        return 1
`
	_, err := Parse(script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "while")
}

func TestRejectsTry(t *testing.T) {
	_, err := Parse("def main():\n    try:\n        return 1\n")
	require.Error(t, err)
}

func TestRejectsImport(t *testing.T) {
	_, err := Parse("import os\n")
	require.Error(t, err)
}

func TestRejectsSetLiteral(t *testing.T) {
	_, err := Parse("def main():\n    x = {1, 2, 3}\n    return x\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set literal")
}

func TestRejectsControlFlowOutsideFunction(t *testing.T) {
	_, err := Parse("if True:\n    x = 1\n")
	require.Error(t, err)
}

func TestRejectsIsinstance(t *testing.T) {
	script := `
def main():
    return isinstance(1, int)
`
	sb := New(nil, Policy{})
	_, err := sb.Eval(context.Background(), script, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "isinstance")
}

type fakeHost struct {
	executed []string
}

func (f *fakeHost) ToolsList(ctx context.Context) ([]map[string]any, error) {
	return []map[string]any{{"name": "send_message"}, {"name": "delete_account"}}, nil
}

func (f *fakeHost) ToolsGet(ctx context.Context, name string) (map[string]any, error) {
	return map[string]any{"name": name}, nil
}

func (f *fakeHost) ToolsExecute(ctx context.Context, name string, args map[string]any) (string, error) {
	f.executed = append(f.executed, name)
	return "ok", nil
}

func (f *fakeHost) ToolsExecuteJSON(ctx context.Context, name string, args map[string]any) (any, error) {
	f.executed = append(f.executed, name)
	return map[string]any{"ok": true}, nil
}

func (f *fakeHost) AttachmentGet(ctx context.Context, id string) (map[string]any, error) {
	return map[string]any{"id": id}, nil
}

func (f *fakeHost) WakeLLM(ctx context.Context, promptContext string, includeEvent bool) error {
	return nil
}

func TestPolicyDeniesDisallowedTool(t *testing.T) {
	host := &fakeHost{}
	sb := New(host, Policy{AllowedTools: []string{"send_message"}})
	script := `
def main():
    return tools_execute("delete_account", {})
`
	_, err := sb.Eval(context.Background(), script, nil)
	require.Error(t, err)
	assert.Empty(t, host.executed)
}

func TestPolicyAllowsPermittedTool(t *testing.T) {
	host := &fakeHost{}
	sb := New(host, Policy{AllowedTools: []string{"send_message"}})
	script := `
def main():
    return tools_execute("send_message", {"text": "hi"})
`
	result, err := sb.Eval(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, []string{"send_message"}, host.executed)
}

func TestPolicyDenyAllOverridesAllowedTools(t *testing.T) {
	host := &fakeHost{}
	sb := New(host, Policy{DenyAllTools: true, AllowedTools: []string{"send_message"}})
	script := `
def main():
    return tools_execute("send_message", {})
`
	_, err := sb.Eval(context.Background(), script, nil)
	require.Error(t, err)
	assert.Empty(t, host.executed)
}

func TestDictAndListOperations(t *testing.T) {
	script := `
def main():
    d = {"a": 1, "b": 2}
    items = []
    for k in dict_keys(d):
        items = append(items, k)
    return len(items)
`
	sb := New(nil, Policy{})
	result, err := sb.Eval(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result)
}
