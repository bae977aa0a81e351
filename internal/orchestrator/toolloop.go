package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/familyassistant/core/internal/metrics"
	"github.com/familyassistant/core/internal/providers"
	"github.com/familyassistant/core/internal/telemetry"
	"github.com/familyassistant/core/internal/tools"
)

// runToolCalls executes the tool calls from one assistant turn: sequentially
// for a single call (no goroutine overhead), in parallel for multiple (tool
// handlers are context-scoped and safe for concurrent use). Results are
// always emitted back to the caller, and appended to messages, in the
// original call order for deterministic transcripts.
func (t *Turn) runToolCalls(ctx context.Context, ec *tools.ExecutionContext, calls []providers.ToolCall, guard *loopGuard, emit func(Event)) []providers.Message {
	if len(calls) == 1 {
		return []providers.Message{t.runOneToolCall(ctx, ec, calls[0], guard, emit)}
	}

	type indexed struct {
		idx int
		msg providers.Message
	}

	resultCh := make(chan indexed, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, tc providers.ToolCall) {
			defer wg.Done()
			resultCh <- indexed{idx: idx, msg: t.runOneToolCall(ctx, ec, tc, guard, emit)}
		}(i, tc)
	}
	go func() { wg.Wait(); close(resultCh) }()

	collected := make([]indexed, 0, len(calls))
	for r := range resultCh {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	out := make([]providers.Message, len(collected))
	for i, c := range collected {
		out[i] = c.msg
	}
	return out
}

func traceAttrOption(toolName string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("tool_name", toolName))
}

func (t *Turn) runOneToolCall(ctx context.Context, ec *tools.ExecutionContext, tc providers.ToolCall, guard *loopGuard, emit func(Event)) providers.Message {
	ctx, span := telemetry.Tracer("familyassistant/orchestrator").Start(ctx, "tool.call",
		traceAttrOption(tc.Name))
	start := time.Now()

	emit(Event{Type: EventToolCall, ToolName: tc.Name, ToolID: tc.ID})

	hash := guard.record(tc.Name, tc.Arguments)
	result, err := t.cfg.Tools.Execute(ctx, ec, tc.Name, tc.Arguments)
	if err != nil {
		result = tools.ErrorResult("tool execution failed: " + err.Error())
	}
	guard.recordResult(hash, result.ForLLM)

	outcome := "ok"
	if result.IsError {
		outcome = "error"
	}
	metrics.RecordToolCall(tc.Name, outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	emit(Event{Type: EventToolDone, ToolName: tc.Name, ToolID: tc.ID, IsError: result.IsError})

	return providers.Message{
		Role:       "tool",
		Content:    summarizeLargeToolResult(result.ForLLM),
		ToolCallID: tc.ID,
	}
}
