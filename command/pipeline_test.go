package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebus/buserrs"
	"corebus/message"
)

func TestHandleWaitResolvesOnAcceptanceNotCompletion(t *testing.T) {
	producer, consumer := NewPipeline(0)

	release := make(chan struct{})
	var mu sync.Mutex
	var completed bool

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.Run(ctx, func(ctx context.Context, cmd Command) error {
		<-release
		mu.Lock()
		completed = true
		mu.Unlock()
		return nil
	}, nil)

	handle, err := producer.Send(context.Background(), CallRpcCommand{
		Message: message.NewRpcMessage("mycompany.auth", "ping", nil),
	})
	require.NoError(t, err)

	waitErr := make(chan error, 1)
	go func() { waitErr <- handle.Wait(context.Background()) }()

	select {
	case err := <-waitErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handle.Wait did not resolve on acceptance")
	}

	mu.Lock()
	done := completed
	mu.Unlock()
	assert.False(t, done, "dispatch should not yet have completed when Wait resolved")

	close(release)
}

func TestRunDispatchesInSubmissionOrder(t *testing.T) {
	producer, consumer := NewPipeline(4)

	var mu sync.Mutex
	var order []string

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		consumer.Run(ctx, func(ctx context.Context, cmd Command) error {
			switch c := cmd.(type) {
			case CallRpcCommand:
				mu.Lock()
				order = append(order, c.Message.ProcedureName)
				mu.Unlock()
			}
			return nil
		}, nil)
		close(done)
	}()

	for _, name := range []string{"a", "b", "c"} {
		h, err := producer.Send(context.Background(), CallRpcCommand{
			Message: message.NewRpcMessage("mycompany.auth", name, nil),
		})
		require.NoError(t, err)
		require.NoError(t, h.Wait(context.Background()))
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRunRoutesDispatchErrorsWithoutStoppingLoop(t *testing.T) {
	producer, consumer := NewPipeline(4)

	var mu sync.Mutex
	var errs []error

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		consumer.Run(ctx, func(ctx context.Context, cmd Command) error {
			switch cmd.(type) {
			default:
				return &buserrs.UnrecognisedCommandError{}
			}
		}, func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})
		close(done)
	}()

	h1, err := producer.Send(context.Background(), CloseCommand{})
	require.NoError(t, err)
	require.NoError(t, h1.Wait(context.Background()))

	h2, err := producer.Send(context.Background(), ConsumeRpcsCommand{APINames: []string{"mycompany.auth"}})
	require.NoError(t, err)
	require.NoError(t, h2.Wait(context.Background()))

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, errs, 2, "both dispatch errors should have been routed, loop kept running")
}

func TestProducerSendRespectsContextCancellation(t *testing.T) {
	producer, _ := NewPipeline(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := producer.Send(ctx, CloseCommand{})
	assert.ErrorIs(t, err, context.Canceled)
}
