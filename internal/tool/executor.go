package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nanobot/internal/domain"
	"nanobot/internal/metrics"
)

// Executor runs tool calls against a Registry. Every failure mode, whether
// a missing tool, an execution error, or a panic inside a tool, is reported
// as a failed ToolResult rather than propagated.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// Execute runs a single tool call and always returns a usable result.
func (e *Executor) Execute(ctx context.Context, call domain.ToolCall) (result domain.ToolResult) {
	t := e.registry.Get(call.FunctionName)
	if t == nil {
		e.logger.Warn("tool not found", "name", call.FunctionName)
		return domain.ToolFailure(call.ID, fmt.Errorf("tool not found: %s", call.FunctionName))
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "name", call.FunctionName, "panic", r)
			result = domain.ToolFailure(call.ID, fmt.Errorf("tool panicked: %v", r))
		}
	}()

	start := time.Now()
	output, err := t.Execute(ctx, call)
	elapsed := time.Since(start)
	metrics.ToolExecutions.Inc()
	metrics.ToolLatency.Observe(elapsed.Seconds())

	if err != nil {
		e.logger.Warn("tool failed", "name", call.FunctionName, "duration", elapsed, "error", err)
		return domain.ToolFailure(call.ID, err)
	}
	e.logger.Debug("tool executed", "name", call.FunctionName, "duration", elapsed)
	return domain.ToolSuccess(call.ID, output)
}

// ExecuteBatch runs the calls concurrently and returns results in the same
// order as the input once every call has finished.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	if len(calls) == 0 {
		return nil
	}
	results := make([]domain.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call domain.ToolCall) {
			defer wg.Done()
			results[i] = e.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}
