// Package client assembles a Bus: the user-facing entry point that owns
// the command pipelines, docks, transport registry, API registry, hooks,
// and error queue a spec-conformant bus client needs.
//
// Call flow for a remote call, grounded on the original
// RpcResultClient.call_rpc_remote:
//
//	CallRPCRemote(api, proc, kwargs)
//	  → before_rpc_call hook
//	  → enqueue CallRpcCommand           (held pending by the rpc dock)
//	  → enqueue ReceiveResultCommand     (arms the listener, then releases the call)
//	  → race the result channel against the error queue (errqueue.BailOnError)
//	  → timeout / server error / success
//	  → after_rpc_call hook
//	  → return result
package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"corebus/api"
	"corebus/buserrs"
	"corebus/command"
	"corebus/config"
	"corebus/dock"
	"corebus/errqueue"
	"corebus/hooks"
	"corebus/message"
	"corebus/middleware"
	"corebus/registry"
	"corebus/schema"
	"corebus/transport"
)

const pipelineBuffer = 16

// Bus is the user-facing client: construct one with New, register APIs
// with RegisterAPI, then call CallRPCRemote / ConsumeRPCs / SendEvent /
// ConsumeEvents. Close releases every background task and transport pool.
type Bus struct {
	registry  *registry.TransportRegistry
	apis      *api.Registry
	hooks     *hooks.Hooks
	errQueue  *errqueue.Queue
	logger    *zap.Logger
	validator schema.Validator

	rpcProducer *command.Producer
	rpcConsumer *command.Consumer
	rpcDock     *dock.RPCResultDock

	eventProducer *command.Producer
	eventConsumer *command.Consumer
	eventDock     *dock.EventDock

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New builds a Bus from cfg: wires the transport registry, then starts
// both docks' command-consumer loops as background goroutines.
func New(cfg *config.Config, logger *zap.Logger) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: invalid config: %w", err)
	}

	reg := registry.New()
	if err := reg.LoadConfig(cfg); err != nil {
		return nil, fmt.Errorf("client: loading transport config: %w", err)
	}

	castByAPI := make(map[string]bool, len(cfg.APIs))
	for name, apiCfg := range cfg.APIs {
		castByAPI[name] = apiCfg.CastValues
	}

	apiRegistry := api.NewRegistry()
	h := hooks.New()
	errQueue := errqueue.New()

	runCtx, runCancel := context.WithCancel(context.Background())

	rpcProducer, rpcConsumer := command.NewPipeline(pipelineBuffer)
	rpcDock := dock.NewRPCResultDock(reg, apiRegistry, h, errQueue, logger, castByAPI)

	eventProducer, eventConsumer := command.NewPipeline(pipelineBuffer)
	eventDock := dock.NewEventDock(reg, errQueue, logger)

	b := &Bus{
		registry:      reg,
		apis:          apiRegistry,
		hooks:         h,
		errQueue:      errQueue,
		logger:        logger,
		validator:     schema.Noop{},
		rpcProducer:   rpcProducer,
		rpcConsumer:   rpcConsumer,
		rpcDock:       rpcDock,
		eventProducer: eventProducer,
		eventConsumer: eventConsumer,
		eventDock:     eventDock,
		runCtx:        runCtx,
		runCancel:     runCancel,
	}

	go rpcConsumer.Run(runCtx, rpcDock.Dispatch, func(err error) {
		errQueue.Push("rpc-dock:dispatch", err)
	})
	go eventConsumer.Run(runCtx, eventDock.Dispatch, func(err error) {
		errQueue.Push("event-dock:dispatch", err)
	})

	return b, nil
}

// Hooks returns the typed hook registry a caller may set entries on
// before issuing any calls.
func (b *Bus) Hooks() *hooks.Hooks { return b.hooks }

// UseMiddleware sets the middleware chain wrapping every locally served
// procedure's execution.
func (b *Bus) UseMiddleware(middlewares ...middleware.Middleware) {
	b.rpcDock.UseMiddleware(middlewares...)
}

// SetValidator installs v as the schema validator consulted on both the
// call path (CallRPCRemote) and the serve path (ExecuteRpc). Schema
// validation internals are an external collaborator (see package
// schema); passing nil restores the no-op default that accepts every
// payload.
func (b *Bus) SetValidator(v schema.Validator) {
	if v == nil {
		v = schema.Noop{}
	}
	b.validator = v
	b.rpcDock.SetValidator(v)
}

// schemaTTLSeconds bounds how long a stored schema survives without a
// renewing Ping; no config surface exposes it yet, so every API shares
// this one default.
const schemaTTLSeconds = 60

// RegisterAPI binds rcvr's exported methods under name and makes it
// servable via ConsumeRPCs. If a schema transport is configured, the
// API's exported schema is stored under name immediately — best-effort,
// since an application that hasn't configured bus.schema.transport is
// not required to publish schemas at all.
func (b *Bus) RegisterAPI(name string, rcvr any) error {
	a, err := api.New(name, rcvr)
	if err != nil {
		return err
	}
	b.apis.Add(a)

	pool, err := b.registry.GetSchemaTransportPool()
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Scope(ctx, func(ctx context.Context, t transport.SchemaTransport) error {
		return t.Store(ctx, name, a.Schema(), schemaTTLSeconds)
	}); err != nil {
		b.logger.Warn("schema store failed", zap.String("api", name), zap.Error(err))
	}
	return nil
}

// CallRPCRemote performs a synchronous RPC call: publish it, arm a result
// listener, and wait for the correlated reply or a timeout.
func (b *Bus) CallRPCRemote(ctx context.Context, apiName, procedureName string, kwargs message.Kwargs, options map[string]any) (any, error) {
	rpcMsg := message.NewRpcMessage(apiName, procedureName, kwargs)

	if err := b.validator.ValidateCall(apiName, procedureName, kwargs); err != nil {
		return nil, &buserrs.SchemaValidationError{CanonicalName: rpcMsg.CanonicalName(), Direction: "outgoing", Reason: err.Error()}
	}

	if err := b.hooks.BeforeRPCCall(ctx, rpcMsg); err != nil {
		return nil, err
	}

	callHandle, err := b.rpcProducer.Send(ctx, command.CallRpcCommand{Message: rpcMsg, Options: options})
	if err != nil {
		return nil, err
	}
	if err := callHandle.Wait(ctx); err != nil {
		return nil, err
	}

	dest := make(chan command.ResultOrError, 1)
	receiveHandle, err := b.rpcProducer.Send(ctx, command.ReceiveResultCommand{Message: rpcMsg, Destination: dest, Options: options})
	if err != nil {
		return nil, err
	}
	if err := receiveHandle.Wait(ctx); err != nil {
		return nil, err
	}

	roe, err := errqueue.BailOnError(ctx, b.errQueue, func(ctx context.Context) (command.ResultOrError, error) {
		select {
		case r := <-dest:
			return r, nil
		case <-ctx.Done():
			return command.ResultOrError{}, ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}
	if roe.Err != nil {
		return nil, roe.Err
	}

	resultMsg := roe.Result

	if err := b.hooks.AfterRPCCall(ctx, rpcMsg, resultMsg); err != nil {
		return nil, err
	}

	if resultMsg.Error {
		return nil, &buserrs.RemoteCallError{
			CanonicalName: rpcMsg.CanonicalName(),
			Message:       fmt.Sprint(resultMsg.Result),
			Trace:         resultMsg.Trace,
		}
	}

	if err := b.validator.ValidateResult(apiName, procedureName, resultMsg.Result); err != nil {
		return nil, &buserrs.SchemaValidationError{CanonicalName: rpcMsg.CanonicalName(), Direction: "incoming", Reason: err.Error()}
	}

	return resultMsg.Result, nil
}

// ConsumeRPCs starts serving incoming calls for apiNames. An empty
// apiNames defaults to every API currently registered.
func (b *Bus) ConsumeRPCs(ctx context.Context, apiNames []string) error {
	if len(apiNames) == 0 {
		apiNames = b.apis.Names()
	}
	if len(apiNames) == 0 {
		return &buserrs.NoAPIsToListenOnError{}
	}

	handle, err := b.rpcProducer.Send(ctx, command.ConsumeRpcsCommand{APINames: apiNames})
	if err != nil {
		return err
	}
	return handle.Wait(ctx)
}

// SendEvent publishes an event under apiName/eventName.
func (b *Bus) SendEvent(ctx context.Context, apiName, eventName string, kwargs message.Kwargs, options map[string]any) error {
	eventMsg := message.NewEventMessage(apiName, eventName, kwargs)

	pool, err := b.registry.GetEventTransportPool(apiName)
	if err != nil {
		return err
	}
	return pool.Scope(ctx, func(ctx context.Context, t transport.EventTransport) error {
		return t.SendEvent(ctx, eventMsg, options)
	})
}

// ConsumeEvents starts a named listener for the given (api, event) pairs
// and returns a channel of arriving batches. ctx bounds only the enqueue
// of the command; the listeners run until the Bus is closed, and the
// returned channel is never closed.
func (b *Bus) ConsumeEvents(ctx context.Context, events []transport.EventKey, listenerName string, options map[string]any) (<-chan transport.EventBatch, error) {
	dest := make(chan transport.EventBatch)
	handle, err := b.eventProducer.Send(ctx, command.ConsumeEventsCommand{
		Events:       events,
		ListenerName: listenerName,
		Options:      options,
		Destination:  dest,
	})
	if err != nil {
		return nil, err
	}
	if err := handle.Wait(ctx); err != nil {
		return nil, err
	}
	return dest, nil
}

// Close stops both docks' listener tasks, drains outstanding work, and
// closes every transport pool the registry has ever handed out.
func (b *Bus) Close(ctx context.Context) error {
	rpcHandle, err := b.rpcProducer.Send(ctx, command.CloseCommand{})
	if err != nil {
		return err
	}
	if err := rpcHandle.Wait(ctx); err != nil {
		return err
	}

	eventHandle, err := b.eventProducer.Send(ctx, command.CloseCommand{})
	if err != nil {
		return err
	}
	if err := eventHandle.Wait(ctx); err != nil {
		return err
	}

	b.runCancel()

	var firstErr error
	for _, p := range b.registry.AllTransportPools() {
		if closer, ok := p.(interface{ Close(context.Context) error }); ok {
			if err := closer.Close(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
