package sandbox

// hostBuiltins are functions that proxy into the Host (Tool API, Attachment
// API, Wake API — §4.6). They are only reachable when the Interp was built
// with a non-nil Host; evalCall raises a named ScriptExecutionError
// otherwise rather than a bare "undefined name".
var hostBuiltins = map[string]builtinFunc{
	"tools_list":         hbToolsList,
	"tools_get":          hbToolsGet,
	"tools_execute":      hbToolsExecute,
	"tools_execute_json": hbToolsExecuteJSON,
	"attachment_get":     hbAttachmentGet,
	"wake_llm":           hbWakeLLM,
}

func hbToolsList(ip *Interp, call *CallExpr, args []any) (any, error) {
	tools, err := ip.host.ToolsList(ip.ctx)
	if err != nil {
		return nil, execErr(call, "tools_list failed: %v", err)
	}
	out := make([]any, len(tools))
	for i, t := range tools {
		out[i] = anyMap(t)
	}
	return out, nil
}

func hbToolsGet(ip *Interp, call *CallExpr, args []any) (any, error) {
	name, err := requireString(call, args, 0, "tools_get")
	if err != nil {
		return nil, err
	}
	t, err := ip.host.ToolsGet(ip.ctx, name)
	if err != nil {
		return nil, execErr(call, "tools_get failed: %v", err)
	}
	return anyMap(t), nil
}

func hbToolsExecute(ip *Interp, call *CallExpr, args []any) (any, error) {
	name, err := requireString(call, args, 0, "tools_execute")
	if err != nil {
		return nil, err
	}
	toolArgs, err := optionalDict(call, args, 1)
	if err != nil {
		return nil, err
	}
	result, err := ip.host.ToolsExecute(ip.ctx, name, toolArgs)
	if err != nil {
		return nil, execErr(call, "tools_execute failed: %v", err)
	}
	return result, nil
}

func hbToolsExecuteJSON(ip *Interp, call *CallExpr, args []any) (any, error) {
	name, err := requireString(call, args, 0, "tools_execute_json")
	if err != nil {
		return nil, err
	}
	toolArgs, err := optionalDict(call, args, 1)
	if err != nil {
		return nil, err
	}
	result, err := ip.host.ToolsExecuteJSON(ip.ctx, name, toolArgs)
	if err != nil {
		return nil, execErr(call, "tools_execute_json failed: %v", err)
	}
	return normalizeJSON(result), nil
}

func hbAttachmentGet(ip *Interp, call *CallExpr, args []any) (any, error) {
	id, err := requireString(call, args, 0, "attachment_get")
	if err != nil {
		return nil, err
	}
	a, err := ip.host.AttachmentGet(ip.ctx, id)
	if err != nil {
		return nil, execErr(call, "attachment_get failed: %v", err)
	}
	return anyMap(a), nil
}

func hbWakeLLM(ip *Interp, call *CallExpr, args []any) (any, error) {
	if len(args) == 0 {
		return nil, execErr(call, "wake_llm() requires a context argument")
	}
	context := stringify(args[0])
	includeEvent := true
	if len(args) > 1 {
		includeEvent = truthy(args[1])
	}
	if err := ip.host.WakeLLM(ip.ctx, context, includeEvent); err != nil {
		return nil, execErr(call, "wake_llm failed: %v", err)
	}
	return nil, nil
}

func requireString(call *CallExpr, args []any, idx int, name string) (string, error) {
	if idx >= len(args) {
		return "", execErr(call, "%s() requires a string argument", name)
	}
	s, ok := args[idx].(string)
	if !ok {
		return "", execErr(call, "%s() requires a string argument", name)
	}
	return s, nil
}

func optionalDict(call *CallExpr, args []any, idx int) (map[string]any, error) {
	if idx >= len(args) {
		return map[string]any{}, nil
	}
	m, ok := args[idx].(map[string]any)
	if !ok {
		return nil, execErr(call, "expected a dict argument")
	}
	return m, nil
}

func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
