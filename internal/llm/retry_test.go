package llm_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-report-service/internal/llm"
)

type fakeCompleter struct {
	calls   atomic.Int32
	replies []func() (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, error) {
	n := int(f.calls.Add(1)) - 1
	if n >= len(f.replies) {
		n = len(f.replies) - 1
	}
	return f.replies[n]()
}

func fail(msg string) func() (string, error) {
	return func() (string, error) { return "", errors.New(msg) }
}

func empty() (string, error) { return "", llm.ErrEmptyCompletion }

func ok(s string) func() (string, error) {
	return func() (string, error) { return s, nil }
}

func TestRetrying_FirstAttemptSucceeds(t *testing.T) {
	f := &fakeCompleter{replies: []func() (string, error){ok("hello")}}
	r := llm.NewRetrying(f, llm.WithDelay(0))

	out, err := r.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestRetrying_RecoversAfterTransientError(t *testing.T) {
	f := &fakeCompleter{replies: []func() (string, error){fail("429 rate limited"), ok("report")}}
	r := llm.NewRetrying(f, llm.WithDelay(time.Millisecond))

	out, err := r.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "report", out)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestRetrying_EmptyCompletionIsRetried(t *testing.T) {
	f := &fakeCompleter{replies: []func() (string, error){empty, ok("text")}}
	r := llm.NewRetrying(f, llm.WithDelay(0))

	out, err := r.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "text", out)
}

func TestRetrying_ExhaustsAfterMaxAttempts(t *testing.T) {
	f := &fakeCompleter{replies: []func() (string, error){fail("upstream unavailable")}}
	r := llm.NewRetrying(f, llm.WithMaxAttempts(3), llm.WithDelay(0))

	out, err := r.Complete(context.Background(), "p")
	assert.Empty(t, out)
	assert.EqualValues(t, 3, f.calls.Load())

	var ex *llm.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
	assert.Contains(t, err.Error(), "error")
	assert.Contains(t, err.Error(), "retries")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestRetrying_ExhaustedOnEmptyResponses(t *testing.T) {
	f := &fakeCompleter{replies: []func() (string, error){empty}}
	r := llm.NewRetrying(f, llm.WithDelay(0))

	_, err := r.Complete(context.Background(), "p")
	var ex *llm.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, llm.DefaultMaxAttempts, ex.Attempts)
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
	assert.True(t, strings.HasPrefix(err.Error(), "LLM call failed after 2 retries"))
}

func TestRetrying_CancelledContextIsNotExhaustion(t *testing.T) {
	f := &fakeCompleter{replies: []func() (string, error){fail("boom")}}
	r := llm.NewRetrying(f, llm.WithMaxAttempts(5), llm.WithDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.Complete(ctx, "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var ex *llm.ExhaustedError
	assert.False(t, errors.As(err, &ex))
}
