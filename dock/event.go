// Package dock converts commands dequeued from a subclient's pipeline
// into transport operations. It owns every long-lived listener task and
// acquires the rpc, result and event pools for every command it handles.
// client.Bus.SendEvent and client.Bus.RegisterAPI do not go through a
// dock: they acquire their event and schema pools directly.
package dock

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"corebus/buserrs"
	"corebus/command"
	"corebus/errqueue"
	"corebus/registry"
	"corebus/transport"
)

// EventDock handles ConsumeEventsCommand and CloseCommand for the event
// side of a bus. Grounded on lightbus's EventDock.handle_consume_events:
// group requested (api, event) pairs by the pool that serves them, spawn
// one listener task per group, forward every yielded batch onto the
// command's destination channel in arrival order.
type EventDock struct {
	registry *registry.TransportRegistry
	errQueue *errqueue.Queue
	logger   *zap.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	listenerCtx context.Context
	wg         sync.WaitGroup
	pools      map[*transport.Pool[transport.EventTransport]]struct{}
}

// NewEventDock creates an EventDock backed by reg for pool resolution and
// errQueue for routing background listener failures.
func NewEventDock(reg *registry.TransportRegistry, errQueue *errqueue.Queue, logger *zap.Logger) *EventDock {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventDock{
		registry:    reg,
		errQueue:    errQueue,
		logger:      logger,
		cancel:      cancel,
		listenerCtx: ctx,
		pools:       make(map[*transport.Pool[transport.EventTransport]]struct{}),
	}
}

// Dispatch type-switches cmd to its handler. An unrecognised Command
// variant is a programming error, not a transport failure.
func (d *EventDock) Dispatch(ctx context.Context, cmd command.Command) error {
	switch c := cmd.(type) {
	case command.ConsumeEventsCommand:
		return d.handleConsumeEvents(c)
	case command.CloseCommand:
		return d.handleClose(ctx)
	default:
		return &buserrs.UnrecognisedCommandError{CommandType: fmt.Sprintf("%T", cmd)}
	}
}

func apiNamesOf(events []transport.EventKey) []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range events {
		if !seen[e.APIName] {
			seen[e.APIName] = true
			names = append(names, e.APIName)
		}
	}
	return names
}

func eventsForAPIs(events []transport.EventKey, apiNames []string) []transport.EventKey {
	allowed := map[string]bool{}
	for _, n := range apiNames {
		allowed[n] = true
	}
	var filtered []transport.EventKey
	for _, e := range events {
		if allowed[e.APIName] {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func (d *EventDock) handleConsumeEvents(cmd command.ConsumeEventsCommand) error {
	groups, err := d.registry.GetEventTransportPools(apiNamesOf(cmd.Events))
	if err != nil {
		return err
	}

	for _, group := range groups {
		group := group
		events := eventsForAPIs(cmd.Events, group.APINames)

		d.mu.Lock()
		d.pools[group.Pool] = struct{}{}
		ctx := d.listenerCtx
		d.wg.Add(1)
		d.mu.Unlock()

		go func() {
			defer d.wg.Done()
			if err := d.runListener(ctx, group.Pool, events, cmd); err != nil && ctx.Err() == nil {
				d.logger.Warn("event listener task failed", zap.Error(err), zap.String("listener", cmd.ListenerName))
				d.errQueue.Push("event-dock:"+cmd.ListenerName, err)
			}
		}()
	}
	return nil
}

// runListener scope-acquires pool, opens a consume stream for events, and
// forwards every batch onto cmd.Destination in arrival order. This is the
// backpressure boundary described in spec §4.5: a slow consumer of
// cmd.Destination blocks this forward, which transitively stops pulling
// from the transport.
func (d *EventDock) runListener(ctx context.Context, pool *transport.Pool[transport.EventTransport], events []transport.EventKey, cmd command.ConsumeEventsCommand) error {
	return pool.Scope(ctx, func(ctx context.Context, t transport.EventTransport) error {
		batches, err := t.Consume(ctx, events, cmd.ListenerName, cmd.Options)
		if err != nil {
			return err
		}
		for {
			select {
			case batch, ok := <-batches:
				if !ok {
					return nil
				}
				select {
				case cmd.Destination <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// handleClose cancels every listener task cooperatively, awaits their
// completion, then closes every event transport pool this dock has ever
// used — cancellation is awaited before close so no listener is still
// consuming when its transport is torn down (spec §4.5).
func (d *EventDock) handleClose(ctx context.Context) error {
	d.mu.Lock()
	d.cancel()
	pools := make([]*transport.Pool[transport.EventTransport], 0, len(d.pools))
	for p := range d.pools {
		pools = append(pools, p)
	}
	d.mu.Unlock()

	d.wg.Wait()

	var firstErr error
	for _, p := range pools {
		if err := p.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
