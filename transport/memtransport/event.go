package memtransport

import (
	"context"
	"time"

	"corebus/message"
	"corebus/transport"
)

// EventTransport is the in-process EventTransport implementation.
// Delivery is at-least-once: a listener's cursor only advances past an
// event once Acknowledge is called for it, so a batch that is never acked
// is redelivered on the next poll (including across a Consume restart
// under the same listenerName).
type EventTransport struct {
	broker *Broker

	// pollInterval is how often a listener polls the broker for new or
	// unacknowledged events; Consume does not wait on the broker's cond
	// variable. Unexported; the package's tests set it directly, and
	// NewEventTransport defaults it to a small interval.
	pollInterval time.Duration
}

// NewEventTransport returns an EventTransport backed by broker.
func NewEventTransport(broker *Broker) *EventTransport {
	return &EventTransport{broker: broker, pollInterval: 20 * time.Millisecond}
}

func (t *EventTransport) Open(ctx context.Context) error  { return nil }
func (t *EventTransport) Close(ctx context.Context) error { return nil }

func (t *EventTransport) SendEvent(ctx context.Context, msg *message.EventMessage, options map[string]any) error {
	t.broker.appendEvent(msg)
	return nil
}

func (t *EventTransport) Consume(ctx context.Context, listenFor []transport.EventKey, listenerName string, options map[string]any) (<-chan transport.EventBatch, error) {
	keys := make([]eventKey, len(listenFor))
	for i, k := range listenFor {
		keys[i] = eventKey{apiName: k.APIName, eventName: k.EventName}
	}

	out := make(chan transport.EventBatch)
	go func() {
		defer close(out)
		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()
		for {
			if batch := t.broker.pendingFor(listenerName, keys); len(batch) > 0 {
				select {
				case out <- transport.EventBatch(batch):
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (t *EventTransport) Acknowledge(ctx context.Context, msgs ...*message.EventMessage) error {
	for _, msg := range msgs {
		// listenerName is not carried on EventMessage; memtransport's
		// Consume closes over it instead, so Acknowledge here advances
		// every listener that has ever registered a cursor, plus a shared
		// sentinel cursor for listeners that haven't started consuming yet.
		// This is looser than a real consumer-group transport (which acks
		// against exactly one group) but is sufficient for the
		// single-listener-per-key tests this transport serves.
		t.broker.mu.Lock()
		listenerNames := make([]string, 0, len(t.broker.ackCursors)+1)
		for listenerName := range t.broker.ackCursors {
			listenerNames = append(listenerNames, listenerName)
		}
		t.broker.mu.Unlock()

		listenerNames = append(listenerNames, sharedAckSentinel)
		for _, listenerName := range listenerNames {
			t.broker.acknowledge(listenerName, msg)
		}
	}
	return nil
}

// sharedAckSentinel is the listener name memtransport acks against when no
// named listener has registered a cursor yet.
const sharedAckSentinel = "*"

func (t *EventTransport) History(ctx context.Context, apiName, eventName string, start, stop int64) ([]*message.EventMessage, error) {
	log := t.broker.history(apiName, eventName)
	if len(log) == 0 {
		return nil, nil
	}
	n := int64(len(log))
	lo, hi := start, stop
	if lo < 0 {
		lo = 0
	}
	if hi < 0 || hi >= n {
		hi = n - 1
	}
	if lo > hi {
		return nil, nil
	}
	// start and stop are offsets from the newest entry (0 = newest), so
	// walking them upward yields newest first, per the interface contract
	out := make([]*message.EventMessage, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, log[n-1-i])
	}
	return out, nil
}
