package delegate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"parley/internal/config"
	"parley/internal/connector"
	"parley/internal/llm"
	"parley/internal/shared/logging"
	"parley/internal/stream"
)

// ToolName is the wire name of the delegation tool exposed to the parent
// conversation's model.
const ToolName = "delegate_task"

// Tool exposes delegated runs as a callable tool. A single invocation runs
// one task; the batch form runs several tasks concurrently, bounded by the
// configured parallelism.
type Tool struct {
	resolver  *connector.Resolver
	directory connector.Directory
	runner    *Runner
	limits    config.DelegateConfig
	logger    logging.Logger
}

// NewTool wires the delegation tool.
func NewTool(resolver *connector.Resolver, directory connector.Directory, runner *Runner, limits config.DelegateConfig, logger logging.Logger) *Tool {
	return &Tool{
		resolver:  resolver,
		directory: directory,
		runner:    runner,
		limits:    limits,
		logger:    logging.OrNop(logger),
	}
}

// Definition returns the schema advertised to the parent model.
func (t *Tool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        ToolName,
		Description: "Delegate a task to a focused agent scoped to the named connectors. Returns a JSON analysis of the run.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"toolkits": {
					Type:        "string",
					Description: "Connector name or comma-separated list of connector names the task may use.",
				},
				"task": {
					Type:        "string",
					Description: "What the delegated agent should accomplish.",
				},
				"context": {
					Type:        "string",
					Description: "Optional prior-conversation context for the agent.",
				},
				"tasks": {
					Type:        "array",
					Description: "Batch form: multiple {toolkits, task, context} objects run concurrently.",
				},
			},
			Required: []string{"task"},
		},
	}
}

// Execute runs the tool. userID identifies the caller for connector
// resolution; sink receives the run's boundary and step events. The return
// value is a JSON analysis (or JSON array for the batch form) so the parent
// model can reason about the outcome.
func (t *Tool) Execute(ctx context.Context, userID string, args map[string]any, sink stream.Sink) (string, error) {
	if batch, ok := args["tasks"]; ok {
		return t.executeBatch(ctx, userID, batch, sink)
	}

	req, err := parseRequest(args)
	if err != nil {
		return "", err
	}
	analysis, err := t.runOne(ctx, userID, req, sink)
	if err != nil {
		return "", err
	}
	return marshalAnalysis(analysis), nil
}

func (t *Tool) executeBatch(ctx context.Context, userID string, raw any, sink stream.Sink) (string, error) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return "", fmt.Errorf("tasks must be a non-empty array")
	}

	requests := make([]Request, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return "", fmt.Errorf("tasks[%d] must be an object", i)
		}
		req, err := parseRequest(fields)
		if err != nil {
			return "", fmt.Errorf("tasks[%d]: %w", i, err)
		}
		requests[i] = req
	}

	var mu sync.Mutex
	results := make([]stream.Analysis, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.limits.MaxParallel)
	for i, req := range requests {
		g.Go(func() error {
			analysis, err := t.runOne(gctx, userID, req, sink)
			if err != nil {
				return fmt.Errorf("tasks[%d]: %w", i, err)
			}
			mu.Lock()
			results[i] = analysis
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	out, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("marshal batch analyses: %w", err)
	}
	return string(out), nil
}

// runOne resolves the tool scope and executes a single delegated run.
// Resolution and validation failures return synchronously; once the run
// starts, failures land in the analysis instead.
func (t *Tool) runOne(ctx context.Context, userID string, req Request, sink stream.Sink) (stream.Analysis, error) {
	if err := req.Validate(t.limits); err != nil {
		return stream.Analysis{}, err
	}
	set, err := t.resolver.Resolve(ctx, userID, req.Toolkits)
	if err != nil {
		return stream.Analysis{}, err
	}
	visible, err := t.directory.Toolkits(ctx, userID)
	if err != nil {
		t.logger.Warn("connector visibility lookup failed, preamble will omit it: %v", err)
		visible = nil
	}
	return t.runner.Run(ctx, req, set, visible, sink), nil
}

// parseRequest accepts the wire argument shapes: toolkits as a single
// string, a comma-separated string, or an array of strings.
func parseRequest(args map[string]any) (Request, error) {
	var req Request

	switch v := args["toolkits"].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if name := strings.TrimSpace(part); name != "" {
				req.Toolkits = append(req.Toolkits, name)
			}
		}
	case []any:
		for _, item := range v {
			if name, ok := item.(string); ok && strings.TrimSpace(name) != "" {
				req.Toolkits = append(req.Toolkits, name)
			}
		}
	case []string:
		req.Toolkits = append(req.Toolkits, v...)
	case nil:
	default:
		return req, fmt.Errorf("toolkits must be a string or array of strings")
	}

	if task, ok := args["task"].(string); ok {
		req.Task = task
	}
	if contextText, ok := args["context"].(string); ok {
		req.Context = contextText
	}
	return req, nil
}

func marshalAnalysis(a stream.Analysis) string {
	out, err := json.Marshal(a)
	if err != nil {
		// Plain-text fallback; consumers handle both shapes.
		return fmt.Sprintf("success=%v toolCalls=%d finishReason=%s summary=%s",
			a.Success, a.ToolCallCount, a.FinishReason, a.Summary)
	}
	return string(out)
}
