package errqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBailOnErrorReturnsFnResultWhenFirst(t *testing.T) {
	q := New()
	ctx := context.Background()

	val, err := BailOnError(ctx, q, func(ctx context.Context) (string, error) {
		return "pong", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "pong", val)
}

func TestBailOnErrorCancelsFnOnQueuedError(t *testing.T) {
	q := New()
	ctx := context.Background()

	fnCancelled := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_, err := BailOnError(ctx, q, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			close(fnCancelled)
			return 0, ctx.Err()
		})
		assert.Error(t, err)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("listener", errors.New("background failure"))

	select {
	case <-fnCancelled:
	case <-time.After(time.Second):
		t.Fatal("fn was not cancelled after queued error won the race")
	}
	<-done
}

func TestGetRespectsContextCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
