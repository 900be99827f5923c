package command

import (
	"context"
	"fmt"
)

// Handle is returned by Producer.Send. Wait resolves once the consumer
// has dequeued the command — acceptance, not completion — so a caller
// can fan out background work without blocking on its result.
type Handle struct {
	accepted chan struct{}
}

// Wait blocks until the command is accepted by the consumer, or ctx is
// cancelled first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.accepted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type envelope struct {
	cmd    Command
	handle *Handle
}

// Producer is the enqueue side of a subclient's command pipeline.
type Producer struct {
	ch chan envelope
}

// Consumer is the dequeue side of a subclient's command pipeline, paired
// 1:1 with the Producer that shares its channel.
type Consumer struct {
	ch chan envelope
}

// NewPipeline creates a Producer/Consumer pair backed by a FIFO channel
// of the given buffer size. A buffer of 0 makes Send block until Run is
// actively waiting to dequeue.
func NewPipeline(buffer int) (*Producer, *Consumer) {
	ch := make(chan envelope, buffer)
	return &Producer{ch: ch}, &Consumer{ch: ch}
}

// Send enqueues cmd and returns a Handle whose Wait resolves on
// acceptance. Blocks if the pipeline buffer is full, until ctx is
// cancelled.
func (p *Producer) Send(ctx context.Context, cmd Command) (*Handle, error) {
	h := &Handle{accepted: make(chan struct{})}
	select {
	case p.ch <- envelope{cmd: cmd, handle: h}:
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispatch handles one command. Implementations (docks) type-switch on
// the concrete Command variant; an unrecognised variant should return
// buserrs.UnrecognisedCommandError.
type Dispatch func(ctx context.Context, cmd Command) error

// ErrFunc reports a dispatch failure, typically by routing it to an
// errqueue.Queue. Run never lets a dispatch error stop the loop — that
// would strand every command enqueued after it.
type ErrFunc func(err error)

// Run dequeues commands in order and dispatches them synchronously via
// dispatch, preserving submission order (spec §5's ordering guarantee:
// "Commands dispatched to one subclient are handled in submission
// order"). Each command's Handle is marked accepted immediately before
// its dispatch call, so a waiting producer is released without waiting
// for the command's own work to finish. Handlers that need to do
// long-running work (e.g. spawning a listener task) must fork it
// themselves and return promptly, or they will stall every command
// behind them.
func (c *Consumer) Run(ctx context.Context, dispatch Dispatch, onError ErrFunc) {
	for {
		select {
		case env, ok := <-c.ch:
			if !ok {
				return
			}
			close(env.handle.accepted)
			if err := dispatch(ctx, env.cmd); err != nil {
				if onError != nil {
					onError(fmt.Errorf("command dispatch: %w", err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
