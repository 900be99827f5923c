package tcptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"corebus/codec"
	"corebus/message"
	"corebus/protocol"
)

// sendCall writes msg as a request frame on the client connection.
// Correlation uses the message's own ID rather than the protocol header's
// Seq field (unlike the teacher, which keyed its pending map by a
// connection-local sequence counter) — the ID is already globally unique
// and is the same identifier ResultTransport.Arm registers a waiter under,
// so there is no need for a second counter.
func (ep *Endpoint) sendCall(ctx context.Context, msg *message.RpcMessage) error {
	payload, err := json.Marshal(msg.Kwargs)
	if err != nil {
		return fmt.Errorf("tcptransport: marshal kwargs: %w", err)
	}
	wireMsg := &codec.WireMessage{
		ID:            msg.ID,
		APIName:       msg.APIName,
		ProcedureName: msg.ProcedureName,
		Payload:       payload,
	}

	cleanup := deadlineContext(ctx, ep.conn)
	defer cleanup()
	return ep.writeFrame(ep.conn, &ep.sending, protocol.MsgTypeRequest, wireMsg)
}

// armWaiter registers a channel to receive the result correlated to
// returnPath before returning, so a response that the recvLoop reads
// immediately after is never dropped. This mirrors memtransport's
// Arm/waiters map, just with the channel fed by a socket instead of a
// broker.
func (ep *Endpoint) armWaiter(returnPath string) chan *message.ResultMessage {
	ch := make(chan *message.ResultMessage, 1)
	ep.mu.Lock()
	ep.pending[returnPath] = ch
	ep.mu.Unlock()
	return ch
}

// recvLoop is the client's single reader goroutine: TCP is a byte stream,
// so reads must be sequential to parse frame boundaries correctly. Each
// decoded response is routed to its correlated waiter, if one is still
// registered (it may have already timed out and been abandoned).
func (ep *Endpoint) recvLoop() {
	for {
		header, wireMsg, err := ep.readFrame(ep.conn)
		if err != nil {
			ep.failAllPending(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		resultMsg := &message.ResultMessage{
			RPCMessageID: wireMsg.CorrelationID,
			Error:        wireMsg.Error,
			Trace:        wireMsg.Trace,
		}
		if wireMsg.Error {
			var errText string
			_ = json.Unmarshal(wireMsg.Payload, &errText)
			resultMsg.Result = errText
		} else {
			var result any
			_ = json.Unmarshal(wireMsg.Payload, &result)
			resultMsg.Result = result
		}

		ep.mu.Lock()
		ch, ok := ep.pending[wireMsg.CorrelationID]
		if ok {
			delete(ep.pending, wireMsg.CorrelationID)
		}
		ep.mu.Unlock()
		if ok {
			ch <- resultMsg
		}
	}
}

// failAllPending notifies every still-armed waiter that the connection
// broke, so none of them block forever.
func (ep *Endpoint) failAllPending(err error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for id, ch := range ep.pending {
		ch <- &message.ResultMessage{RPCMessageID: id, Error: true, Result: err.Error()}
		delete(ep.pending, id)
	}
}

// heartbeatLoop periodically writes a zero-body heartbeat frame so a
// server on the other end (or a middlebox) doesn't time the connection
// out during a quiet period.
func (ep *Endpoint) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
		ep.sending.Lock()
		err := protocol.Encode(ep.conn, header, nil)
		ep.sending.Unlock()
		if err != nil {
			return
		}
	}
}
