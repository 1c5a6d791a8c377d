package llm

import (
	"context"
	"sync/atomic"

	apperrors "parley/internal/errors"
	"parley/internal/shared/logging"
)

// RetryClient wraps a StreamingClient with classified retry. Rate-limited
// calls are retried with backoff; quota, balance, and auth failures are
// marked permanent so callers can surface a fallback suggestion instead of
// burning the retry budget.
type RetryClient struct {
	inner  StreamingClient
	config apperrors.RetryConfig
	logger logging.Logger
}

// NewRetryClient wraps inner with retry behavior.
func NewRetryClient(inner StreamingClient, config apperrors.RetryConfig, logger logging.Logger) *RetryClient {
	return &RetryClient{inner: inner, config: config, logger: logging.OrNop(logger)}
}

// classify maps a provider error onto the transient/permanent taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	c := apperrors.ClassifyProviderError(err)
	switch c.Kind {
	case apperrors.ProviderErrorRateLimit:
		return apperrors.NewTransientError(err, c.Message)
	case apperrors.ProviderErrorQuotaExceeded,
		apperrors.ProviderErrorInsufficientBalance,
		apperrors.ProviderErrorAuth:
		return apperrors.NewPermanentError(err, c.Message)
	}
	return err
}

// Complete implements Client.
func (c *RetryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return apperrors.RetryWithResult(ctx, c.config, func(ctx context.Context) (*CompletionResponse, error) {
		resp, err := c.inner.Complete(ctx, req)
		return resp, classify(err)
	}, c.logger)
}

// CompleteStream implements StreamingClient. Retrying a stream that already
// delivered deltas would duplicate output downstream, so retries only cover
// failures that occur before the first delta.
func (c *RetryClient) CompleteStream(ctx context.Context, req CompletionRequest, callbacks CompletionStreamCallbacks) (*CompletionResponse, error) {
	var delivered atomic.Bool

	wrapped := CompletionStreamCallbacks{}
	if callbacks.OnContentDelta != nil {
		wrapped.OnContentDelta = func(d ContentDelta) {
			delivered.Store(true)
			callbacks.OnContentDelta(d)
		}
	}
	if callbacks.OnReasoningDelta != nil {
		wrapped.OnReasoningDelta = func(d ReasoningDelta) {
			delivered.Store(true)
			callbacks.OnReasoningDelta(d)
		}
	}

	return apperrors.RetryWithResult(ctx, c.config, func(ctx context.Context) (*CompletionResponse, error) {
		resp, err := c.inner.CompleteStream(ctx, req, wrapped)
		if err != nil && delivered.Load() {
			// Mid-stream failure, not safe to replay.
			return nil, apperrors.NewPermanentError(err, "stream interrupted after partial output")
		}
		return resp, classify(err)
	}, c.logger)
}

var _ StreamingClient = (*RetryClient)(nil)
