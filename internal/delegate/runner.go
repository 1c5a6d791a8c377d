package delegate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"parley/internal/config"
	"parley/internal/connector"
	apperrors "parley/internal/errors"
	"parley/internal/llm"
	"parley/internal/shared/logging"
	tokenutil "parley/internal/shared/token"
	"parley/internal/stream"
)

// inBandErrorScanLimit bounds how long a model output may be and still be
// treated as a bare provider failure message. Long outputs that merely
// mention a pattern (e.g. a user discussing rate limits) are not failures.
const inBandErrorScanLimit = 200

// Runner executes delegated runs: a bounded generation loop against the
// model, relaying every internal lifecycle event through a stream boundary
// and finishing with a terminal analysis. Errors inside the loop are
// captured into the analysis, never thrown; the boundary always closes.
type Runner struct {
	client llm.StreamingClient
	model  config.ModelConfig
	limits config.DelegateConfig
	logger logging.Logger
}

// NewRunner constructs a runner.
func NewRunner(client llm.StreamingClient, model config.ModelConfig, limits config.DelegateConfig, logger logging.Logger) *Runner {
	return &Runner{
		client: client,
		model:  model,
		limits: limits,
		logger: logging.OrNop(logger),
	}
}

// Run executes one delegated task against an already-resolved tool set.
// visible carries the caller's full connector view for the instruction
// preamble. The returned analysis is also emitted on the closing boundary
// event, so stream consumers and the direct caller see the same verdict.
func (r *Runner) Run(ctx context.Context, req Request, set *connector.ToolSet, visible []connector.Toolkit, sink stream.Sink) stream.Analysis {
	boundary := stream.OpenBoundary(sink, uuid.NewString(), req.Task, set.ToolkitNames(), req.Context)
	r.logger.Info("delegated run %s started: %d tools, budget %d", boundary.ID(), set.Len(), r.limits.StepBudget)

	var analysis stream.Analysis
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("delegated run %s panicked: %v", boundary.ID(), rec)
				msg := fmt.Sprintf("run panicked: %v", rec)
				analysis = computeAnalysis(outcome{
					finishReason: stream.FinishError,
					capturedErr:  errors.New(msg),
				}, r.limits.SubstantialOutputChars)
				boundary.Close(analysis, "", nil)
			}
		}()

		o, usage := r.runLoop(ctx, req, set, visible, boundary)
		analysis = computeAnalysis(o, r.limits.SubstantialOutputChars)
		boundary.Close(analysis, toolSummary(o), usage)
	}()

	r.logger.Info("delegated run %s finished: success=%v tools=%d reason=%s",
		boundary.ID(), analysis.Success, analysis.ToolCallCount, analysis.FinishReason)
	return analysis
}

func (r *Runner) runLoop(ctx context.Context, req Request, set *connector.ToolSet, visible []connector.Toolkit, boundary *stream.Boundary) (outcome, *stream.TokenUsage) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: BuildPreamble(req.Task, set.ToolkitNames(), visible)},
	}
	if ctxText := strings.TrimSpace(req.Context); ctxText != "" {
		if r.model.MaxTokens > 0 {
			// The parent context shares the window with the preamble and
			// the run's own turns; cap it at a quarter of the window.
			ctxText = tokenutil.TruncateToTokens(ctxText, r.model.MaxTokens/4)
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: "Context from the parent conversation:\n" + ctxText,
		})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Task})

	var (
		o      outcome
		usage  llm.TokenUsage
		output strings.Builder
		seen   = map[string]struct{}{}
		budget = r.limits.StepBudget
	)

	for step := 1; step <= budget; step++ {
		stepID := fmt.Sprintf("step-%d", step)
		boundary.Emit(&stream.StepEvent{StepID: stepID, Kind: stream.StepKindStep, Status: stream.StepStatusStart, Step: step})

		resp, err := r.completeStep(ctx, step, messages, set, boundary)
		if err != nil {
			o.capturedErr = err
			o.finishReason = stream.FinishError
			boundary.Emit(&stream.StepEvent{StepID: stepID, Kind: stream.StepKindStep, Status: stream.StepStatusFinish, Step: step, ErrorText: err.Error()})
			break
		}
		usage.Add(resp.Usage)

		if resp.Content != "" {
			output.WriteString(resp.Content)
			output.WriteString("\n")
		}
		if failure, ok := inBandFailure(resp.Content); ok {
			o.capturedErr = failure
			o.finishReason = stream.FinishError
			boundary.Emit(&stream.StepEvent{StepID: stepID, Kind: stream.StepKindStep, Status: stream.StepStatusFinish, Step: step, ErrorText: failure.Error()})
			break
		}

		if len(resp.ToolCalls) == 0 {
			o.finishReason = stream.NormalizeFinishReason(resp.StopReason)
			boundary.Emit(&stream.StepEvent{StepID: stepID, Kind: stream.StepKindStep, Status: stream.StepStatusFinish, Step: step})
			break
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			o.toolCallCount++
			if _, dup := seen[tc.Name]; !dup {
				seen[tc.Name] = struct{}{}
				o.toolNames = append(o.toolNames, tc.Name)
			}

			boundary.Emit(&stream.StepEvent{
				StepID: tc.ID, Kind: stream.StepKindTool, Status: stream.StepStatusInputAvailable,
				ToolCallID: tc.ID, ToolName: tc.Name, Input: tc.Arguments,
			})

			result, terr := set.Invoke(ctx, tc.Name, tc.Arguments)
			if terr != nil {
				o.capturedErr = fmt.Errorf("tool %s failed: %w", tc.Name, terr)
				boundary.Emit(&stream.StepEvent{
					StepID: tc.ID, Kind: stream.StepKindTool, Status: stream.StepStatusOutputAvailable,
					ToolCallID: tc.ID, ToolName: tc.Name, ErrorText: terr.Error(),
				})
				break
			}
			boundary.Emit(&stream.StepEvent{
				StepID: tc.ID, Kind: stream.StepKindTool, Status: stream.StepStatusOutputAvailable,
				ToolCallID: tc.ID, ToolName: tc.Name, Output: result,
			})
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: tc.ID})
		}

		if o.capturedErr != nil {
			o.finishReason = stream.FinishError
			boundary.Emit(&stream.StepEvent{StepID: stepID, Kind: stream.StepKindStep, Status: stream.StepStatusFinish, Step: step, ErrorText: o.capturedErr.Error()})
			break
		}

		boundary.Emit(&stream.StepEvent{StepID: stepID, Kind: stream.StepKindStep, Status: stream.StepStatusFinish, Step: step})
		if step == budget {
			// Budget exhausted with the model still mid-conversation.
			o.finishReason = stream.FinishToolCalls
		}
	}

	o.output = strings.TrimSpace(output.String())

	if usage.TotalTokens == 0 && o.output != "" {
		// Provider gave no accounting; estimate so the boundary end still
		// carries usable numbers.
		usage.CompletionTokens = tokenutil.CountTokens(o.output)
		usage.TotalTokens = usage.CompletionTokens
	}
	return o, &stream.TokenUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
}

// completeStep requests one model round, relaying text and reasoning deltas
// as step events while the stream is in flight.
func (r *Runner) completeStep(ctx context.Context, step int, messages []llm.Message, set *connector.ToolSet, boundary *stream.Boundary) (*llm.CompletionResponse, error) {
	textID := fmt.Sprintf("text-%d", step)
	reasoningID := fmt.Sprintf("reasoning-%d", step)
	var textOpen, textDone, reasoningOpen, reasoningDone bool

	callbacks := llm.CompletionStreamCallbacks{
		OnContentDelta: func(d llm.ContentDelta) {
			if d.Final {
				if textOpen && !textDone {
					textDone = true
					boundary.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusEnd})
				}
				return
			}
			if !textOpen {
				textOpen = true
				boundary.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusStart})
			}
			boundary.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusDelta, Delta: d.Delta})
		},
		OnReasoningDelta: func(d llm.ReasoningDelta) {
			if d.Final {
				if reasoningOpen && !reasoningDone {
					reasoningDone = true
					boundary.Emit(&stream.StepEvent{StepID: reasoningID, Kind: stream.StepKindReasoning, Status: stream.StepStatusEnd})
				}
				return
			}
			if !reasoningOpen {
				reasoningOpen = true
				boundary.Emit(&stream.StepEvent{StepID: reasoningID, Kind: stream.StepKindReasoning, Status: stream.StepStatusStart})
			}
			boundary.Emit(&stream.StepEvent{StepID: reasoningID, Kind: stream.StepKindReasoning, Status: stream.StepStatusDelta, Delta: d.Delta})
		},
	}

	resp, err := r.client.CompleteStream(ctx, llm.CompletionRequest{
		Model:       r.model.Name,
		Messages:    messages,
		Tools:       set.Definitions(),
		Temperature: r.model.Temperature,
		MaxTokens:   r.model.MaxTokens,
	}, callbacks)

	// Close any block the provider left open.
	if textOpen && !textDone {
		boundary.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusEnd})
	}
	if reasoningOpen && !reasoningDone {
		boundary.Emit(&stream.StepEvent{StepID: reasoningID, Kind: stream.StepKindReasoning, Status: stream.StepStatusEnd})
	}
	return resp, err
}

// inBandFailure detects provider failure text surfaced as model output
// instead of a returned error. Only short outputs qualify.
func inBandFailure(content string) (error, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len(trimmed) > inBandErrorScanLimit {
		return nil, false
	}
	c, ok := apperrors.ClassifyProviderText(trimmed)
	if !ok {
		return nil, false
	}
	return errors.New(c.Message), true
}
