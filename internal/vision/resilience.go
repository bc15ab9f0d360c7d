package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// callPolicy bounds model calls with retry-plus-backoff and a circuit
// breaker. A full application invokes the model 2x(documents)+2 times, so a
// flapping upstream must fail fast instead of stalling every request.
type callPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	breaker        *gobreaker.CircuitBreaker[string]
	logger         *zap.Logger
}

func newCallPolicy(cfg Config, logger *zap.Logger) *callPolicy {
	maxAttempts := cfg.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	initialBackoff := cfg.RetryInitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}
	maxBackoff := cfg.RetryMaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "model-service",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &callPolicy{
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		breaker:        breaker,
		logger:         logger,
	}
}

// do executes fn under the breaker, retrying transient failures with
// exponential backoff. Non-retryable errors surface immediately.
func (p *callPolicy) do(ctx context.Context, operation string, fn func(context.Context) (string, error)) (string, error) {
	result, err := p.breaker.Execute(func() (string, error) {
		return p.withRetry(ctx, operation, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return "", err
	}
	return result, nil
}

func (p *callPolicy) withRetry(ctx context.Context, operation string, fn func(context.Context) (string, error)) (string, error) {
	backoff := p.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == p.maxAttempts {
			break
		}

		p.logger.Warn("Retrying model call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
		case <-timer.C:
		}

		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}

	if isRetryable(lastErr) {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
	}
	return "", lastErr
}

// isRetryable classifies an error as a transient transport or upstream
// fault. Client-side errors (bad request, auth) are not retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Connection-level failures wrap url.Error, which satisfies net.Error;
	// anything else is treated as permanent.
	return false
}
