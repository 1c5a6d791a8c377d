package llm

import (
	"context"
	"strings"
	"sync"

	tokenutil "parley/internal/shared/token"
)

// MockTurn is one scripted model response.
type MockTurn struct {
	Content    string
	Reasoning  string
	ToolCalls  []ToolCall
	StopReason string
	Err        error
}

// MockClient replays scripted turns in order. It is used by tests and by the
// built-in "mock" provider for local development. Once the script is
// exhausted it keeps returning the last turn, or a plain stop if no turns
// were scripted.
type MockClient struct {
	mu       sync.Mutex
	turns    []MockTurn
	calls    int
	Requests []CompletionRequest
}

// NewMockClient returns a client that replays turns in order.
func NewMockClient(turns ...MockTurn) *MockClient {
	return &MockClient{turns: turns}
}

// Calls reports how many completions have been requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) next(req CompletionRequest) (MockTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	idx := m.calls
	m.calls++
	if len(m.turns) == 0 {
		return MockTurn{Content: "ok", StopReason: "stop"}, nil
	}
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	}
	turn := m.turns[idx]
	if turn.Err != nil {
		return MockTurn{}, turn.Err
	}
	return turn, nil
}

func (m *MockClient) respond(req CompletionRequest, turn MockTurn) *CompletionResponse {
	stop := turn.StopReason
	if stop == "" {
		if len(turn.ToolCalls) > 0 {
			stop = "tool_calls"
		} else {
			stop = "stop"
		}
	}
	prompt := 0
	for _, msg := range req.Messages {
		prompt += tokenutil.EstimateFast(msg.Content)
	}
	completion := tokenutil.EstimateFast(turn.Content)
	return &CompletionResponse{
		Content:    turn.Content,
		Reasoning:  turn.Reasoning,
		ToolCalls:  turn.ToolCalls,
		StopReason: stop,
		Usage: TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn, err := m.next(req)
	if err != nil {
		return nil, err
	}
	return m.respond(req, turn), nil
}

// CompleteStream implements StreamingClient, chunking the scripted content
// word by word so downstream consumers exercise their delta paths.
func (m *MockClient) CompleteStream(ctx context.Context, req CompletionRequest, callbacks CompletionStreamCallbacks) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if turn.Reasoning != "" && callbacks.OnReasoningDelta != nil {
		callbacks.OnReasoningDelta(ReasoningDelta{Delta: turn.Reasoning})
		callbacks.OnReasoningDelta(ReasoningDelta{Final: true})
	}
	if callbacks.OnContentDelta != nil {
		words := strings.SplitAfter(turn.Content, " ")
		for _, w := range words {
			if w == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			callbacks.OnContentDelta(ContentDelta{Delta: w})
		}
		callbacks.OnContentDelta(ContentDelta{Final: true})
	}
	return m.respond(req, turn), nil
}

var _ StreamingClient = (*MockClient)(nil)
