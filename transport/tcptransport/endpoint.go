// Package tcptransport implements RpcTransport and ResultTransport over the
// custom framed TCP protocol in package protocol, using package codec for
// the frame body. It is the wire-carrying sibling of memtransport: where
// memtransport exchanges messages through a shared in-process Broker, this
// package exchanges the same message shapes through a real socket.
//
// A client-role Endpoint multiplexes many concurrent calls over one TCP
// connection, the way the teacher's ClientTransport does: CallRpc writes a
// request frame and returns immediately, a dedicated recvLoop goroutine
// reads response frames off the same connection and routes each one by
// correlation ID to the goroutine that armed a waiter for it. A
// server-role Endpoint accepts connections, decodes inbound request
// frames onto a channel for ConsumeRpcs, and remembers which connection a
// request arrived on so SendResult can write the reply back to the right
// place.
//
// RpcTransport and ResultTransport are thin wrappers around a shared
// *Endpoint — CallRpc/ConsumeRpcs and Arm/SendResult must operate on the
// same connection(s), so callers construct one Endpoint (NewClientEndpoint
// or NewServerEndpoint) and pass it to both factories via the "endpoint"
// transport option, mirroring memtransport's shared-*Broker convention.
package tcptransport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"corebus/codec"
	"corebus/message"
	"corebus/protocol"
)

// role distinguishes which half of the wire protocol an Endpoint plays.
type role int

const (
	roleClient role = iota
	roleServer
)

// Endpoint is the shared connection-management state behind both
// RpcTransport and ResultTransport. Exactly one Endpoint should back one
// logical peer relationship (one remote address for a client, one listen
// address for a server).
type Endpoint struct {
	role  role
	addr  string
	codec codec.Codec

	mu     sync.Mutex
	closed bool

	// client-role state: one multiplexed connection, dialed by
	// NewClientEndpoint and shared by every call.
	conn    net.Conn
	sending sync.Mutex
	pending map[string]chan *message.ResultMessage

	// server-role state: the accept loop's listener, the channel
	// ConsumeRpcs yields inbound calls on, and enough per-connection
	// bookkeeping to write a reply back to the connection a request
	// arrived on.
	listener   net.Listener
	inbound    chan *message.RpcMessage
	connsByID  map[string]*serverConn
	acceptOnce sync.Once
}

// serverConn pairs a connection with the write lock serializing frames
// written to it — mirrors the teacher's handleConn's per-connection
// writeMu, needed because SendResult and a future heartbeat write could
// otherwise interleave bytes from two goroutines onto the same socket.
type serverConn struct {
	conn    net.Conn
	writeMu *sync.Mutex
}

// NewClientEndpoint dials addr and returns an Endpoint ready for CallRpc
// and Arm. The connection is shared by every call made through it.
func NewClientEndpoint(addr string, cdc codec.Codec) (*Endpoint, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcptransport: dial %s: %w", addr, err)
	}
	ep := &Endpoint{
		role:    roleClient,
		addr:    addr,
		codec:   cdc,
		conn:    conn,
		pending: make(map[string]chan *message.ResultMessage),
	}
	go ep.recvLoop()
	go ep.heartbeatLoop(30 * time.Second)
	return ep, nil
}

// NewServerEndpoint listens on addr and returns an Endpoint ready for
// ConsumeRpcs and SendResult. Accepting starts only once ConsumeRpcs is
// called, mirroring the teacher's Serve entering its Accept loop only
// after service registration.
func NewServerEndpoint(addr string, cdc codec.Codec) (*Endpoint, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcptransport: listen %s: %w", addr, err)
	}
	return &Endpoint{
		role:      roleServer,
		addr:      addr,
		codec:     cdc,
		listener:  listener,
		inbound:   make(chan *message.RpcMessage, 64),
		connsByID: make(map[string]*serverConn),
	}, nil
}

// Close tears down the endpoint's connection or listener. Idempotent.
func (ep *Endpoint) Close() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	ep.mu.Unlock()

	switch ep.role {
	case roleClient:
		return ep.conn.Close()
	default:
		return ep.listener.Close()
	}
}

func (ep *Endpoint) writeFrame(conn net.Conn, mu *sync.Mutex, msgType protocol.MsgType, wireMsg *codec.WireMessage) error {
	body, err := ep.codec.Encode(wireMsg)
	if err != nil {
		return fmt.Errorf("tcptransport: encode frame: %w", err)
	}
	header := &protocol.Header{
		CodecType: byte(ep.codec.Type()),
		MsgType:   msgType,
		BodyLen:   uint32(len(body)),
	}
	mu.Lock()
	defer mu.Unlock()
	return protocol.Encode(conn, header, body)
}

func (ep *Endpoint) readFrame(conn net.Conn) (*protocol.Header, *codec.WireMessage, error) {
	header, body, err := protocol.Decode(conn)
	if err != nil {
		return nil, nil, err
	}
	if header.MsgType == protocol.MsgTypeHeartbeat {
		// Heartbeats carry no body; there is nothing to decode.
		return header, &codec.WireMessage{}, nil
	}
	var wireMsg codec.WireMessage
	cdc := codec.GetCodec(codec.CodecType(header.CodecType))
	if err := cdc.Decode(body, &wireMsg); err != nil {
		return nil, nil, fmt.Errorf("tcptransport: decode frame: %w", err)
	}
	return header, &wireMsg, nil
}

// deadlineContext derives a net operation deadline from ctx, if any, so a
// caller-cancelled context can actually interrupt a blocking socket write.
func deadlineContext(ctx context.Context, conn net.Conn) func() {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
		return func() { conn.SetDeadline(time.Time{}) }
	}
	return func() {}
}
