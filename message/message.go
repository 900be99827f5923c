// Package message defines the envelope types exchanged between a corebus
// client and its transports.
//
// Three message kinds flow through the system: RpcMessage (an outbound or
// inbound call), ResultMessage (the reply to a call, correlated by
// RPCMessageID), and EventMessage (a published or consumed event).
// RpcMessage and EventMessage carry an opaque ID assigned at creation; a
// ResultMessage carries the ID of the call it answers.
package message

import (
	"github.com/google/uuid"
)

// Kwargs is the wire-safe keyword-argument bag carried by RPC calls and
// events. Values must already be JSON-marshalable shapes when the caller
// places them here; no corebus package converts them.
type Kwargs map[string]any

// RpcMessage carries the data for a single outbound or inbound RPC call.
// Identity is ID; it is generated fresh for every call and is immutable
// once the message is constructed.
type RpcMessage struct {
	ID            string
	APIName       string
	ProcedureName string
	Kwargs        Kwargs
}

// NewRpcMessage builds an RpcMessage with a fresh ID.
func NewRpcMessage(apiName, procedureName string, kwargs Kwargs) *RpcMessage {
	return &RpcMessage{
		ID:            uuid.NewString(),
		APIName:       apiName,
		ProcedureName: procedureName,
		Kwargs:        kwargs,
	}
}

// CanonicalName returns the "api.procedure" dotted form used in logging and
// error messages.
func (m *RpcMessage) CanonicalName() string {
	return m.APIName + "." + m.ProcedureName
}

// ResultMessage is the reply to an RpcMessage. RPCMessageID is the
// correlation key: exactly one ResultMessage with a given RPCMessageID may
// surface to the caller awaiting that ID; duplicates are discarded by the
// dock that receives them.
type ResultMessage struct {
	RPCMessageID  string
	APIName       string
	ProcedureName string
	Result        any
	Error         bool
	Trace         string
}

// NewResultMessage builds a successful ResultMessage correlated to rpcMsg.
func NewResultMessage(rpcMsg *RpcMessage, result any) *ResultMessage {
	return &ResultMessage{
		RPCMessageID:  rpcMsg.ID,
		APIName:       rpcMsg.APIName,
		ProcedureName: rpcMsg.ProcedureName,
		Result:        result,
	}
}

// NewErrorResultMessage builds a ResultMessage representing a remote
// application error, with a human-readable trace for the caller.
func NewErrorResultMessage(rpcMsg *RpcMessage, errText, trace string) *ResultMessage {
	return &ResultMessage{
		RPCMessageID:  rpcMsg.ID,
		APIName:       rpcMsg.APIName,
		ProcedureName: rpcMsg.ProcedureName,
		Result:        errText,
		Error:         true,
		Trace:         trace,
	}
}

// EventMessage carries a single published or consumed event. NativeID is the
// transport's own identifier for the message (e.g. a Redis stream entry ID)
// and is what acknowledge() is given back.
type EventMessage struct {
	ID        string
	APIName   string
	EventName string
	Kwargs    Kwargs
	NativeID  string
}

// NewEventMessage builds an EventMessage with a fresh ID. NativeID is left
// empty; transports fill it in once the event has been accepted for
// delivery (outbound) or read back off the wire (inbound).
func NewEventMessage(apiName, eventName string, kwargs Kwargs) *EventMessage {
	return &EventMessage{
		ID:        uuid.NewString(),
		APIName:   apiName,
		EventName: eventName,
		Kwargs:    kwargs,
	}
}

// CanonicalName returns the "api.event" dotted form used in logging.
func (m *EventMessage) CanonicalName() string {
	return m.APIName + "." + m.EventName
}
