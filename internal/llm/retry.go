package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blood-report-service/internal/telemetry"
	"blood-report-service/pkg/retry"
)

const (
	DefaultMaxAttempts = 2
	DefaultDelay       = 5 * time.Second
)

// ExhaustedError reports that every attempt failed. Last is the error of the final attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if errors.Is(e.Last, ErrEmptyCompletion) {
		return fmt.Sprintf("LLM call failed after %d retries, returning an empty response.", e.Attempts)
	}
	return fmt.Sprintf("An error occurred after %d retries: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retrying wraps a Completer with a fixed-delay retry loop.
type Retrying struct {
	next        Completer
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

type Option func(*Retrying)

func WithMaxAttempts(n int) Option {
	return func(r *Retrying) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithDelay(d time.Duration) Option {
	return func(r *Retrying) {
		if d >= 0 {
			r.delay = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Retrying) { r.logger = l }
}

func NewRetrying(next Completer, opts ...Option) *Retrying {
	r := &Retrying{
		next:        next,
		maxAttempts: DefaultMaxAttempts,
		delay:       DefaultDelay,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Complete returns the first non-empty completion, or *ExhaustedError once
// maxAttempts calls have failed. A cancelled ctx is returned as is.
func (r *Retrying) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	attempts, err := retry.Do(ctx, retry.Config{
		MaxAttempts: r.maxAttempts,
		Delay:       r.delay,
		OnRetry: func(attempt int, err error) {
			r.logger.Warn("llm attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", r.delay),
				slog.String("error", err.Error()),
			)
		},
	}, func(ctx context.Context) error {
		text, err := r.next.Complete(ctx, prompt)
		switch {
		case errors.Is(err, ErrEmptyCompletion):
			telemetry.LLMAttemptsTotal.WithLabelValues("empty").Inc()
			return err
		case err != nil:
			telemetry.LLMAttemptsTotal.WithLabelValues("error").Inc()
			return err
		}
		telemetry.LLMAttemptsTotal.WithLabelValues("ok").Inc()
		out = text
		return nil
	})
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", err
	}

	telemetry.LLMExhaustedTotal.Inc()
	r.logger.Error("llm retries exhausted",
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
	return "", &ExhaustedError{Attempts: attempts, Last: err}
}
