// Package transport defines the capability contracts the core dispatches
// against (RpcTransport, ResultTransport, EventTransport, SchemaTransport)
// and the bounded, lazily-opened pool that lends out instances of them.
//
// Concrete implementations — tcptransport, redisevent, etcdschema,
// memtransport — are pure I/O adapters; none of this package's own code
// talks to a wire. Every operation here takes a context.Context as its
// first argument and may fail with a transport-class error, which callers
// running inside a background task must route to an errqueue.Queue rather
// than letting it vanish silently.
package transport

import (
	"context"

	"corebus/message"
)

// Transport is the lifecycle every capability contract shares: open once
// before first use, close once during pool drain.
type Transport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// RpcTransport publishes outbound RPC calls and yields inbound ones for the
// APIs a server wants to serve.
type RpcTransport interface {
	Transport

	// CallRpc publishes a call to a remote procedure. It does not wait for
	// a result — that is ResultTransport.Arm's job.
	CallRpc(ctx context.Context, msg *message.RpcMessage, options map[string]any) error

	// ConsumeRpcs yields incoming RpcMessages for the given APIs onto the
	// returned channel until ctx is cancelled. The channel is closed when
	// consumption stops. A failure after ConsumeRpcs has returned is not
	// reported to the caller; this interface carries no error queue.
	ConsumeRpcs(ctx context.Context, apiNames []string) (<-chan *message.RpcMessage, error)
}

// ResultTransport derives where a result should be delivered, sends it, and
// receives it back on the calling side.
type ResultTransport interface {
	Transport

	// GetReturnPath derives the opaque address a server should reply to
	// for the given call.
	GetReturnPath(msg *message.RpcMessage) string

	// SendResult delivers resultMsg to returnPath.
	SendResult(ctx context.Context, rpcMsg *message.RpcMessage, resultMsg *message.ResultMessage, returnPath string) error

	// Arm synchronously registers interest in the result correlated with
	// rpcMsg at returnPath and returns a ResultWaiter whose Wait blocks
	// for it to arrive. Arm returning means the registration has already
	// happened — a result sent after Arm returns, however quickly, is
	// guaranteed to be observed by Wait. This split (register fast,
	// block separately) is what lets dock.RPCResultDock satisfy the
	// pre-arm-before-dispatch invariant: it calls Arm, and only once Arm
	// has returned does it let the correlated CallRpc reach the wire.
	Arm(ctx context.Context, rpcMsg *message.RpcMessage, returnPath string, options map[string]any) (ResultWaiter, error)
}

// ResultWaiter is the armed, not-yet-fulfilled half of a ResultTransport's
// receive path.
type ResultWaiter interface {
	// Wait blocks until the armed result arrives or ctx is cancelled.
	Wait(ctx context.Context) (*message.ResultMessage, error)
}

// EventBatch is one consumer-driven pull's worth of events from a single
// EventTransport. The caller must finish processing a batch (including any
// Acknowledge calls) before pulling the next — this is the backpressure
// boundary described in spec §4.5.
type EventBatch []*message.EventMessage

// EventTransport publishes events and lets listeners consume them with
// at-least-once delivery semantics.
type EventTransport interface {
	Transport

	// SendEvent publishes an event.
	SendEvent(ctx context.Context, msg *message.EventMessage, options map[string]any) error

	// Consume yields batches of events matching listenFor (api, event name
	// pairs) onto the returned channel, tagged under listenerName so
	// multiple listener groups can consume the same stream independently.
	// A failure after Consume has returned is not reported to the caller;
	// this interface carries no error queue.
	Consume(ctx context.Context, listenFor []EventKey, listenerName string, options map[string]any) (<-chan EventBatch, error)

	// Acknowledge confirms delivery of one or more events, so an
	// at-least-once transport does not redeliver them.
	Acknowledge(ctx context.Context, msgs ...*message.EventMessage) error

	// History returns past events for (api, event) within [start, stop],
	// newest first. Optional: implementations may return
	// buserrs-style "not supported" errors.
	History(ctx context.Context, apiName, eventName string, start, stop int64) ([]*message.EventMessage, error)
}

// EventKey names one (api, event) pair a listener wants delivered.
type EventKey struct {
	APIName   string
	EventName string
}

// SchemaTransport shares API schemas between processes for validation.
type SchemaTransport interface {
	Transport

	// Store saves schema for api, valid for ttlSeconds.
	Store(ctx context.Context, apiName string, schema map[string]any, ttlSeconds int64) error

	// Ping keeps a previously stored schema alive. Defaults to calling
	// Store again with the same arguments.
	Ping(ctx context.Context, apiName string, schema map[string]any, ttlSeconds int64) error

	// Load returns every currently stored API's schema.
	Load(ctx context.Context) (map[string]map[string]any, error)
}
