// Package hooks replaces lightbus's "hooks as dynamic attributes"
// (invoked by name, e.g. self._execute_hook("before_rpc_call", ...)) with
// a typed registry of named entry points, each defaulting to a no-op —
// the redesign note's "hook registry object exposing typed entry points".
package hooks

import (
	"context"

	"corebus/message"
)

// BeforeRPCCallFunc runs just before a remote call's RpcMessage is handed
// to the pipeline. Returning an error aborts the call.
type BeforeRPCCallFunc func(ctx context.Context, msg *message.RpcMessage) error

// AfterRPCCallFunc runs after a remote call's result has been received
// (for both success and error results).
type AfterRPCCallFunc func(ctx context.Context, msg *message.RpcMessage, result *message.ResultMessage) error

// BeforeRPCExecutionFunc runs just before a locally served procedure is
// invoked. Returning an error aborts execution; no ResultMessage is sent.
type BeforeRPCExecutionFunc func(ctx context.Context, msg *message.RpcMessage) error

// AfterRPCExecutionFunc runs after a locally served procedure has
// produced its result, before the result is sent back to the caller.
type AfterRPCExecutionFunc func(ctx context.Context, msg *message.RpcMessage, result *message.ResultMessage) error

func noopBefore(ctx context.Context, msg *message.RpcMessage) error { return nil }
func noopAfter(ctx context.Context, msg *message.RpcMessage, result *message.ResultMessage) error {
	return nil
}

// Hooks is the typed hook registry a Bus invokes at each of the four
// entry points named in spec §4.6. Every field defaults to a no-op; set
// only the ones an application needs.
type Hooks struct {
	BeforeRPCCall      BeforeRPCCallFunc
	AfterRPCCall       AfterRPCCallFunc
	BeforeRPCExecution BeforeRPCExecutionFunc
	AfterRPCExecution  AfterRPCExecutionFunc
}

// New returns a Hooks with every entry point set to a no-op default.
func New() *Hooks {
	return &Hooks{
		BeforeRPCCall:      noopBefore,
		AfterRPCCall:       noopAfter,
		BeforeRPCExecution: noopBefore,
		AfterRPCExecution:  noopAfter,
	}
}
