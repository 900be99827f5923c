// Package command defines the internal work items a subclient routes
// through its producer/consumer pipeline (spec §4.4), so RPC calls, RPC
// serving and event consumption never touch a transport directly — they
// assemble a Command, hand it to a Producer, and wait only for pipeline
// acceptance. There is no command for sending an event or storing a
// schema: client.Bus.SendEvent and client.Bus.RegisterAPI acquire their
// pools directly.
//
// Command is a sealed tagged union: every variant is defined in this
// package and carries an unexported marker method, so a dock's type
// switch over Command can only ever be missing a case this package
// itself added — the Go analogue of the exhaustiveness check called for
// by the "type-dispatched command handling" redesign note.
package command

import (
	"corebus/message"
	"corebus/transport"
)

// Command is the sealed interface every command variant implements.
type Command interface {
	isCommand()
}

// CallRpcCommand asks the rpc dock to publish msg to its transport.
type CallRpcCommand struct {
	Message *message.RpcMessage
	Options map[string]any
}

func (CallRpcCommand) isCommand() {}

// ReceiveResultCommand asks the result dock to arm a listener for the
// result correlated with Message and forward it onto Destination when it
// arrives. The dock must finish arming (transport.ResultTransport.Arm)
// before the correlated CallRpcCommand's message reaches the wire — see
// dock.RPCResultDock for how the two commands are sequenced to guarantee
// this even though CallRpcCommand is enqueued first.
type ReceiveResultCommand struct {
	Message     *message.RpcMessage
	Destination chan<- ResultOrError
	Options     map[string]any
}

func (ReceiveResultCommand) isCommand() {}

// ResultOrError is what arrives on a ReceiveResultCommand's Destination:
// either the correlated ResultMessage, or an error (transport failure or
// a call timeout) that the caller must surface in place of a result.
type ResultOrError struct {
	Result *message.ResultMessage
	Err    error
}

// ConsumeEventsCommand asks the event dock to spawn listener tasks
// covering Events and forward arriving batches onto Destination.
type ConsumeEventsCommand struct {
	Events       []transport.EventKey
	ListenerName string
	Options      map[string]any
	Destination  chan<- transport.EventBatch
}

func (ConsumeEventsCommand) isCommand() {}

// ExecuteRpcCommand asks the rpc-result dock to run the local procedure
// named by Message against the bound API registry and send back a
// result.
type ExecuteRpcCommand struct {
	Message *message.RpcMessage
}

func (ExecuteRpcCommand) isCommand() {}

// SendResultCommand asks the result dock to deliver Result back to the
// caller of Original.
type SendResultCommand struct {
	Result   *message.ResultMessage
	Original *message.RpcMessage
}

func (SendResultCommand) isCommand() {}

// ConsumeRpcsCommand asks the rpc dock to spawn listener tasks serving
// incoming calls for APINames.
type ConsumeRpcsCommand struct {
	APINames []string
}

func (ConsumeRpcsCommand) isCommand() {}

// CloseCommand asks a dock to cancel its listener tasks and close its
// transport pools. Every dock must handle this.
type CloseCommand struct{}

func (CloseCommand) isCommand() {}
