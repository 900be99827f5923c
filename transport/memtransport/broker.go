// Package memtransport is an in-process implementation of every transport
// capability contract (RpcTransport, ResultTransport, EventTransport,
// SchemaTransport), backed by a shared Broker instead of a wire. It exists
// for tests and for local development against a bus with no external
// dependencies — the Go analogue of lightbus's debug transports
// (DebugRpcTransport/DebugResultTransport/DebugEventTransport), which hold
// their state in plain Python dicts rather than talking to Redis.
package memtransport

import (
	"strconv"
	"sync"

	"corebus/message"
)

// Broker holds every piece of shared state a set of in-process transports
// need to exchange RPCs, results, events, and schemas. Construct one Broker
// per logical bus under test and pass it to every RegisterXTransport
// factory option under the "broker" key so caller and callee share it.
type Broker struct {
	mu   *sync.Mutex
	cond *sync.Cond

	rpcChans map[string]chan *message.RpcMessage
	waiters  map[string]chan *message.ResultMessage

	events     map[eventKey][]*message.EventMessage
	ackCursors map[string]map[eventKey]int // listenerName -> eventKey -> next unacked index
	schemas    map[string]map[string]any
}

type eventKey struct {
	apiName   string
	eventName string
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	mu := &sync.Mutex{}
	return &Broker{
		mu:         mu,
		cond:       sync.NewCond(mu),
		rpcChans:   make(map[string]chan *message.RpcMessage),
		waiters:    make(map[string]chan *message.ResultMessage),
		events:     make(map[eventKey][]*message.EventMessage),
		ackCursors: make(map[string]map[eventKey]int),
		schemas:    make(map[string]map[string]any),
	}
}

func (b *Broker) rpcChan(apiName string) chan *message.RpcMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.rpcChans[apiName]
	if !ok {
		ch = make(chan *message.RpcMessage, 64)
		b.rpcChans[apiName] = ch
	}
	return ch
}

// appendEvent appends msg to its (api, event) log and assigns NativeID as
// its index, then broadcasts on the broker's cond. Consume does not wait on
// the cond; listeners pick the event up on their next poll.
func (b *Broker) appendEvent(msg *message.EventMessage) {
	b.mu.Lock()
	key := eventKey{apiName: msg.APIName, eventName: msg.EventName}
	msg.NativeID = strconv.Itoa(len(b.events[key]))
	b.events[key] = append(b.events[key], msg)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// pendingFor returns listenerName's undelivered-or-unacked events across
// keys, in per-key append order, without advancing any cursor. A listener
// with no cursor of its own for a key starts from the shared sentinel
// cursor.
func (b *Broker) pendingFor(listenerName string, keys []eventKey) []*message.EventMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	cursors := b.ackCursors[listenerName]
	shared := b.ackCursors[sharedAckSentinel]
	var batch []*message.EventMessage
	for _, key := range keys {
		log := b.events[key]
		cursor, ok := cursors[key]
		if !ok {
			cursor = shared[key]
		}
		if cursor < len(log) {
			batch = append(batch, log[cursor:]...)
		}
	}
	return batch
}

// acknowledge advances listenerName's cursor past msg, so msg is not
// redelivered. Safe to call for an event this listener never saw.
func (b *Broker) acknowledge(listenerName string, msg *message.EventMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := eventKey{apiName: msg.APIName, eventName: msg.EventName}
	idx, _ := strconv.Atoi(msg.NativeID)

	cursors, ok := b.ackCursors[listenerName]
	if !ok {
		cursors = make(map[eventKey]int)
		b.ackCursors[listenerName] = cursors
	}
	if idx+1 > cursors[key] {
		cursors[key] = idx + 1
	}
}

// history returns the full log for (apiName, eventName) without touching
// any listener's cursor.
func (b *Broker) history(apiName, eventName string) []*message.EventMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*message.EventMessage(nil), b.events[eventKey{apiName: apiName, eventName: eventName}]...)
}
