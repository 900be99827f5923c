package tcptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"corebus/codec"
	"corebus/message"
	"corebus/protocol"
)

// acceptLoop runs the server's Accept loop in its own goroutine until ctx
// is cancelled, spawning one reader per connection.
func (ep *Endpoint) acceptLoop(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ep.listener.Close()
	}()

	for {
		conn, err := ep.listener.Accept()
		if err != nil {
			close(ep.inbound)
			return
		}
		go ep.handleConn(conn)
	}
}

// handleConn reads frames sequentially off one connection (reads must be
// sequential to parse frame boundaries) and hands each decoded request to
// the shared inbound channel, remembering the connection it arrived on so
// a later SendResult can reply to the right place.
func (ep *Endpoint) handleConn(conn net.Conn) {
	writeMu := &sync.Mutex{}
	for {
		header, wireMsg, err := ep.readFrame(conn)
		if err != nil {
			return
		}
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}

		var kwargs message.Kwargs
		if err := json.Unmarshal(wireMsg.Payload, &kwargs); err != nil {
			continue
		}

		rpcMsg := &message.RpcMessage{
			ID:            wireMsg.ID,
			APIName:       wireMsg.APIName,
			ProcedureName: wireMsg.ProcedureName,
			Kwargs:        kwargs,
		}

		ep.mu.Lock()
		ep.connsByID[rpcMsg.ID] = &serverConn{conn: conn, writeMu: writeMu}
		ep.mu.Unlock()

		ep.inbound <- rpcMsg
	}
}

// sendResult writes resultMsg back on whichever connection the correlated
// request arrived on, looked up by returnPath (the request's own ID).
func (ep *Endpoint) sendResult(ctx context.Context, returnPath string, resultMsg *message.ResultMessage) error {
	ep.mu.Lock()
	sc, ok := ep.connsByID[returnPath]
	delete(ep.connsByID, returnPath)
	ep.mu.Unlock()
	if !ok {
		return fmt.Errorf("tcptransport: no connection recorded for return path %q", returnPath)
	}

	payload, err := json.Marshal(resultMsg.Result)
	if err != nil {
		return fmt.Errorf("tcptransport: marshal result: %w", err)
	}
	wireMsg := &codec.WireMessage{
		CorrelationID: returnPath,
		Payload:       payload,
		Error:         resultMsg.Error,
		Trace:         resultMsg.Trace,
	}

	cleanup := deadlineContext(ctx, sc.conn)
	defer cleanup()
	return ep.writeFrame(sc.conn, sc.writeMu, protocol.MsgTypeResponse, wireMsg)
}
