package dock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"corebus/api"
	"corebus/buserrs"
	"corebus/command"
	"corebus/errqueue"
	"corebus/hooks"
	"corebus/message"
	"corebus/middleware"
	"corebus/registry"
	"corebus/schema"
	"corebus/transport"
)

// RPCResultDock handles the six command variants spec §4.6 assigns to
// the RPC/Result subclient: CallRpc, ReceiveResult, ExecuteRpc,
// SendResult, ConsumeRpcs, and Close.
//
// CallRpc and ReceiveResult are split across two commands but one
// message: a CallRpcCommand is held in pending until its correlated
// ReceiveResultCommand has armed a ResultTransport.Arm listener, which is
// what lets the dock guarantee the pre-arm-before-dispatch invariant
// (spec §4.6.1) even though CallRpcCommand is always enqueued first.
type RPCResultDock struct {
	registry  *registry.TransportRegistry
	apis      *api.Registry
	hooks     *hooks.Hooks
	errQueue  *errqueue.Queue
	logger    *zap.Logger
	validator schema.Validator

	// castByAPI reports whether kwargs for a given API should be coerced
	// to a bound procedure's parameter types (config apis.<name>.cast_values).
	castByAPI map[string]bool

	// chain wraps every locally served procedure's execution (logging,
	// rate limiting, timeout, retry). Nil means procedures run unwrapped.
	chain middleware.Middleware

	mu          sync.Mutex
	pending     map[string]command.CallRpcCommand
	cancel      context.CancelFunc
	listenerCtx context.Context
	wg          sync.WaitGroup
	rpcPools    map[*transport.Pool[transport.RpcTransport]]struct{}
	resultPools map[*transport.Pool[transport.ResultTransport]]struct{}
}

// NewRPCResultDock creates an RPCResultDock. castByAPI may be nil,
// meaning no API casts kwargs.
func NewRPCResultDock(reg *registry.TransportRegistry, apiRegistry *api.Registry, h *hooks.Hooks, errQueue *errqueue.Queue, logger *zap.Logger, castByAPI map[string]bool) *RPCResultDock {
	ctx, cancel := context.WithCancel(context.Background())
	if castByAPI == nil {
		castByAPI = map[string]bool{}
	}
	return &RPCResultDock{
		registry:    reg,
		apis:        apiRegistry,
		hooks:       h,
		errQueue:    errQueue,
		logger:      logger,
		validator:   schema.Noop{},
		castByAPI:   castByAPI,
		pending:     make(map[string]command.CallRpcCommand),
		cancel:      cancel,
		listenerCtx: ctx,
		rpcPools:    make(map[*transport.Pool[transport.RpcTransport]]struct{}),
		resultPools: make(map[*transport.Pool[transport.ResultTransport]]struct{}),
	}
}

// SetValidator installs v as the schema validator consulted on the serve
// path. Passing nil restores the no-op default.
func (d *RPCResultDock) SetValidator(v schema.Validator) {
	if v == nil {
		v = schema.Noop{}
	}
	d.validator = v
}

// UseMiddleware sets the chain wrapping every locally served procedure's
// execution. Passing no middlewares clears it.
func (d *RPCResultDock) UseMiddleware(middlewares ...middleware.Middleware) {
	if len(middlewares) == 0 {
		d.chain = nil
		return
	}
	d.chain = middleware.Chain(middlewares...)
}

// Dispatch type-switches cmd to its handler.
func (d *RPCResultDock) Dispatch(ctx context.Context, cmd command.Command) error {
	switch c := cmd.(type) {
	case command.CallRpcCommand:
		return d.handleCallRpc(c)
	case command.ReceiveResultCommand:
		return d.handleReceiveResult(ctx, c)
	case command.ExecuteRpcCommand:
		return d.handleExecuteRpc(ctx, c)
	case command.SendResultCommand:
		return d.handleSendResult(ctx, c)
	case command.ConsumeRpcsCommand:
		return d.handleConsumeRpcs(c)
	case command.CloseCommand:
		return d.handleClose(ctx)
	default:
		return &buserrs.UnrecognisedCommandError{CommandType: fmt.Sprintf("%T", cmd)}
	}
}

// handleCallRpc holds the call pending; it is dispatched to the wire by
// handleReceiveResult once the correlated receiver is armed.
func (d *RPCResultDock) handleCallRpc(cmd command.CallRpcCommand) error {
	d.mu.Lock()
	d.pending[cmd.Message.ID] = cmd
	d.mu.Unlock()
	return nil
}

func (d *RPCResultDock) trackResultPool(pool *transport.Pool[transport.ResultTransport]) {
	d.mu.Lock()
	d.resultPools[pool] = struct{}{}
	d.mu.Unlock()
}

func optionTimeout(options map[string]any) (time.Duration, bool) {
	if options == nil {
		return 0, false
	}
	if v, ok := options["timeout"]; ok {
		if d, ok := v.(time.Duration); ok && d > 0 {
			return d, true
		}
	}
	return 0, false
}

// handleReceiveResult arms the result listener, then — only once armed —
// dispatches the correlated pending CallRpcCommand, then forks a
// goroutine to wait for the result and forward it to cmd.Destination.
func (d *RPCResultDock) handleReceiveResult(ctx context.Context, cmd command.ReceiveResultCommand) error {
	resultPool, err := d.registry.GetResultTransportPool(cmd.Message.APIName)
	if err != nil {
		cmd.Destination <- command.ResultOrError{Err: err}
		return err
	}
	d.trackResultPool(resultPool)

	instance, err := resultPool.Acquire(ctx)
	if err != nil {
		cmd.Destination <- command.ResultOrError{Err: err}
		return err
	}

	returnPath := instance.GetReturnPath(cmd.Message)
	waiter, err := instance.Arm(ctx, cmd.Message, returnPath, cmd.Options)
	if err != nil {
		resultPool.Release(instance)
		cmd.Destination <- command.ResultOrError{Err: err}
		return err
	}

	d.mu.Lock()
	pendingCall, ok := d.pending[cmd.Message.ID]
	delete(d.pending, cmd.Message.ID)
	d.mu.Unlock()

	if ok {
		rpcPool, err := d.registry.GetRpcTransportPool(pendingCall.Message.APIName)
		if err != nil {
			resultPool.Release(instance)
			cmd.Destination <- command.ResultOrError{Err: err}
			return err
		}
		d.mu.Lock()
		d.rpcPools[rpcPool] = struct{}{}
		d.mu.Unlock()
		if err := rpcPool.Scope(ctx, func(ctx context.Context, t transport.RpcTransport) error {
			return t.CallRpc(ctx, pendingCall.Message, pendingCall.Options)
		}); err != nil {
			resultPool.Release(instance)
			cmd.Destination <- command.ResultOrError{Err: err}
			return err
		}
	}

	waitCtx := d.listenerCtx
	timeout, hasTimeout := optionTimeout(cmd.Options)
	cancel := func() {}
	if hasTimeout {
		waitCtx, cancel = context.WithTimeout(waitCtx, timeout)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer resultPool.Release(instance)
		defer cancel()

		result, err := waiter.Wait(waitCtx)
		if err != nil {
			cmd.Destination <- command.ResultOrError{Err: &buserrs.CallTimeoutError{
				CanonicalName: cmd.Message.CanonicalName(),
				Elapsed:       humanDuration(timeout),
			}}
			return
		}
		cmd.Destination <- command.ResultOrError{Result: result}
	}()

	return nil
}

// humanDuration renders d the way spec scenarios expect a timeout to read
// in an error message, e.g. 100*time.Millisecond -> "0.1s".
func humanDuration(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}

// handleExecuteRpc runs a locally served procedure and sends its result
// back via handleSendResult. Called directly rather than via another
// round-trip through the pipeline, since both handlers live on the same
// dock and self-enqueuing risks deadlocking a zero-buffer pipeline.
func (d *RPCResultDock) handleExecuteRpc(ctx context.Context, cmd command.ExecuteRpcCommand) error {
	msg := cmd.Message
	if err := d.validator.ValidateCall(msg.APIName, msg.ProcedureName, msg.Kwargs); err != nil {
		d.errQueue.Push("rpc-dock:schema-incoming", &buserrs.SchemaValidationError{
			CanonicalName: msg.CanonicalName(), Direction: "incoming", Reason: err.Error(),
		})
		return nil
	}

	if err := d.hooks.BeforeRPCExecution(ctx, cmd.Message); err != nil {
		return err
	}

	invoke := middleware.HandlerFunc(func(ctx context.Context, msg *message.RpcMessage) *message.ResultMessage {
		a, err := d.apis.Get(msg.APIName)
		if err != nil {
			return message.NewErrorResultMessage(msg, err.Error(), "")
		}
		cast := d.castByAPI[msg.APIName]
		result, callErr := a.Invoke(ctx, msg.ProcedureName, msg.Kwargs, cast)
		if callErr != nil {
			return message.NewErrorResultMessage(msg, callErr.Error(), "")
		}
		return message.NewResultMessage(msg, result)
	})
	if d.chain != nil {
		invoke = d.chain(invoke)
	}
	resultMsg := invoke(ctx, cmd.Message)

	if err := d.hooks.AfterRPCExecution(ctx, cmd.Message, resultMsg); err != nil {
		return err
	}

	if !resultMsg.Error {
		if err := d.validator.ValidateResult(msg.APIName, msg.ProcedureName, resultMsg.Result); err != nil {
			d.errQueue.Push("rpc-dock:schema-outgoing", &buserrs.SchemaValidationError{
				CanonicalName: msg.CanonicalName(), Direction: "outgoing", Reason: err.Error(),
			})
			return nil
		}
	}

	return d.handleSendResult(ctx, command.SendResultCommand{Result: resultMsg, Original: cmd.Message})
}

func (d *RPCResultDock) handleSendResult(ctx context.Context, cmd command.SendResultCommand) error {
	resultPool, err := d.registry.GetResultTransportPool(cmd.Original.APIName)
	if err != nil {
		return err
	}
	d.trackResultPool(resultPool)
	return resultPool.Scope(ctx, func(ctx context.Context, t transport.ResultTransport) error {
		returnPath := t.GetReturnPath(cmd.Original)
		return t.SendResult(ctx, cmd.Original, cmd.Result, returnPath)
	})
}

// handleConsumeRpcs groups apiNames by rpc pool and spawns one listener
// task per group; each incoming RpcMessage is executed directly via
// handleExecuteRpc (each message is independent, so no further ordering
// guarantee is owed across them).
func (d *RPCResultDock) handleConsumeRpcs(cmd command.ConsumeRpcsCommand) error {
	groups, err := d.registry.GetRpcTransportPools(cmd.APINames)
	if err != nil {
		return err
	}

	for _, group := range groups {
		group := group
		d.mu.Lock()
		d.rpcPools[group.Pool] = struct{}{}
		ctx := d.listenerCtx
		d.wg.Add(1)
		d.mu.Unlock()

		go func() {
			defer d.wg.Done()
			if err := d.runRPCListener(ctx, group.Pool, group.APINames); err != nil && ctx.Err() == nil {
				d.logger.Warn("rpc listener task failed", zap.Error(err))
				d.errQueue.Push("rpc-dock", err)
			}
		}()
	}
	return nil
}

func (d *RPCResultDock) runRPCListener(ctx context.Context, pool *transport.Pool[transport.RpcTransport], apiNames []string) error {
	return pool.Scope(ctx, func(ctx context.Context, t transport.RpcTransport) error {
		incoming, err := t.ConsumeRpcs(ctx, apiNames)
		if err != nil {
			return err
		}
		for {
			select {
			case msg, ok := <-incoming:
				if !ok {
					return nil
				}
				if err := d.handleExecuteRpc(ctx, command.ExecuteRpcCommand{Message: msg}); err != nil {
					d.logger.Warn("execute rpc failed", zap.Error(err), zap.String("procedure", msg.CanonicalName()))
					d.errQueue.Push("rpc-dock:execute", err)
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// handleClose cancels every listener task and outstanding result wait,
// awaits them, then closes every rpc and result pool this dock has used.
func (d *RPCResultDock) handleClose(ctx context.Context) error {
	d.mu.Lock()
	d.cancel()
	rpcPools := make([]*transport.Pool[transport.RpcTransport], 0, len(d.rpcPools))
	for p := range d.rpcPools {
		rpcPools = append(rpcPools, p)
	}
	resultPools := make([]*transport.Pool[transport.ResultTransport], 0, len(d.resultPools))
	for p := range d.resultPools {
		resultPools = append(resultPools, p)
	}
	d.mu.Unlock()

	d.wg.Wait()

	var firstErr error
	for _, p := range rpcPools {
		if err := p.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range resultPools {
		if err := p.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
