// Package chat runs the parent conversation: it streams the model's own
// output as boundary-less events and executes delegation tool calls, whose
// runs interleave onto the same session stream behind boundary markers.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parley/internal/config"
	"parley/internal/delegate"
	apperrors "parley/internal/errors"
	"parley/internal/llm"
	"parley/internal/observability"
	"parley/internal/shared/logging"
	"parley/internal/stream"
)

const systemPrompt = "You are a helpful assistant. When a request needs an external " +
	"connector (mail, calendar, workspace tools), delegate it with the " +
	"delegate_task tool and weave the returned analysis into your answer."

// Turn is one user message addressed to a session.
type Turn struct {
	SessionID string
	UserID    string
	Message   string
	History   []llm.Message
}

// Service drives parent turns.
type Service struct {
	client      llm.StreamingClient
	tool        *delegate.Tool
	broadcaster *stream.Broadcaster
	model       config.ModelConfig
	limits      config.DelegateConfig
	metrics     *observability.Metrics
	logger      logging.Logger
}

// NewService wires the chat service.
func NewService(client llm.StreamingClient, tool *delegate.Tool, broadcaster *stream.Broadcaster,
	model config.ModelConfig, limits config.DelegateConfig, metrics *observability.Metrics, logger logging.Logger) *Service {
	return &Service{
		client:      client,
		tool:        tool,
		broadcaster: broadcaster,
		model:       model,
		limits:      limits,
		metrics:     metrics,
		logger:      logging.OrNop(logger),
	}
}

// HandleTurn runs one parent turn to completion, streaming everything to
// the session's subscribers. A failed delegated run does not fail the turn;
// its analysis flows back to the model like any tool result.
func (s *Service) HandleTurn(ctx context.Context, turn Turn) error {
	if turn.Message == "" {
		return apperrors.NewValidationError("message", "message must not be empty")
	}
	sink := s.broadcaster.SessionSink(turn.SessionID)

	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	messages = append(messages, turn.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Message})

	for round := 1; round <= s.limits.StepBudget; round++ {
		resp, err := s.streamRound(ctx, round, messages, sink)
		if err != nil {
			s.logger.Error("parent turn failed in round %d: %v", round, err)
			return err
		}

		if len(resp.ToolCalls) == 0 {
			return nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			result := s.executeToolCall(ctx, turn.UserID, tc, sink)
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: tc.ID})
		}
	}

	s.logger.Warn("parent turn for session %s hit the round budget", turn.SessionID)
	return nil
}

// streamRound requests one parent model round, relaying text deltas as
// boundary-less step events.
func (s *Service) streamRound(ctx context.Context, round int, messages []llm.Message, sink stream.Sink) (*llm.CompletionResponse, error) {
	textID := fmt.Sprintf("parent-text-%d", round)
	var open, done bool

	callbacks := llm.CompletionStreamCallbacks{
		OnContentDelta: func(d llm.ContentDelta) {
			if d.Final {
				if open && !done {
					done = true
					sink.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusEnd})
				}
				return
			}
			if !open {
				open = true
				sink.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusStart})
			}
			sink.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusDelta, Delta: d.Delta})
		},
	}

	resp, err := s.client.CompleteStream(ctx, llm.CompletionRequest{
		Model:       s.model.Name,
		Messages:    messages,
		Tools:       []llm.ToolDefinition{s.tool.Definition()},
		Temperature: s.model.Temperature,
		MaxTokens:   s.model.MaxTokens,
	}, callbacks)

	if open && !done {
		sink.Emit(&stream.StepEvent{StepID: textID, Kind: stream.StepKindText, Status: stream.StepStatusEnd})
	}
	return resp, err
}

// executeToolCall runs one tool call from the parent model. Delegation
// failures come back as error text for the model to react to instead of
// aborting the turn.
func (s *Service) executeToolCall(ctx context.Context, userID string, tc llm.ToolCall, sink stream.Sink) string {
	if tc.Name != delegate.ToolName {
		return fmt.Sprintf("Error: unknown tool %q", tc.Name)
	}

	doneTracking := s.metrics.RunStarted()
	started := time.Now()
	result, err := s.tool.Execute(ctx, userID, tc.Arguments, sink)
	doneTracking()

	if err != nil {
		s.logger.Warn("delegation %s rejected: %v", tc.ID, err)
		s.metrics.ObserveRun(false, string(stream.FinishError), time.Since(started))
		return "Error: " + err.Error()
	}

	var analysis stream.Analysis
	if jsonErr := json.Unmarshal([]byte(result), &analysis); jsonErr == nil && analysis.FinishReason != "" {
		s.metrics.ObserveRun(analysis.Success, string(analysis.FinishReason), time.Since(started))
	} else {
		s.metrics.ObserveRun(true, string(stream.FinishOther), time.Since(started))
	}
	return result
}
