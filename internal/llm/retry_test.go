package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "parley/internal/errors"
)

func fastRetry() apperrors.RetryConfig {
	return apperrors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryClientRetriesRateLimit(t *testing.T) {
	mock := NewMockClient(
		MockTurn{Err: errors.New("429 too many requests")},
		MockTurn{Content: "recovered", StopReason: "stop"},
	)
	client := NewRetryClient(mock, fastRetry(), nil)

	resp, err := client.Complete(context.Background(), CompletionRequest{Model: "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("Content = %q, want recovered", resp.Content)
	}
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2", mock.Calls())
	}
}

func TestRetryClientDoesNotRetryAuth(t *testing.T) {
	mock := NewMockClient(
		MockTurn{Err: errors.New("invalid api key")},
		MockTurn{Content: "should not reach"},
	)
	client := NewRetryClient(mock, fastRetry(), nil)

	_, err := client.Complete(context.Background(), CompletionRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
}

func TestRetryClientStreamNoRetryAfterDeltas(t *testing.T) {
	inner := &midStreamFailer{}
	client := NewRetryClient(inner, fastRetry(), nil)

	var got strings.Builder
	_, err := client.CompleteStream(context.Background(), CompletionRequest{}, CompletionStreamCallbacks{
		OnContentDelta: func(d ContentDelta) { got.WriteString(d.Delta) },
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (no replay after partial output)", inner.calls)
	}
	if got.String() != "partial " {
		t.Errorf("deltas = %q, want exactly the pre-failure output", got.String())
	}
}

type midStreamFailer struct {
	calls int
}

func (f *midStreamFailer) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	return nil, errors.New("rate limit")
}

func (f *midStreamFailer) CompleteStream(ctx context.Context, req CompletionRequest, cb CompletionStreamCallbacks) (*CompletionResponse, error) {
	f.calls++
	if cb.OnContentDelta != nil {
		cb.OnContentDelta(ContentDelta{Delta: "partial "})
	}
	return nil, errors.New("rate limit")
}
