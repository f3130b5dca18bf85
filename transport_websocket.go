package bollywood

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// WebSocketTransport tracks active connections and bridges inbound
// envelopes to a local actor, adapted from the teacher's
// server/websocket.go connection registry and
// server/connection_handler.go read-loop, generalized from a single
// game protocol to any actor reachable through the System (§4.11).
type WebSocketTransport struct {
	mu          sync.RWMutex
	system      *System
	codec       Codec
	log         *slog.Logger
	connections map[*websocket.Conn]*PID
}

// NewWebSocketTransport constructs a transport bound to sys, encoding
// and decoding envelopes with codec.
func NewWebSocketTransport(sys *System, codec Codec, log *slog.Logger) *WebSocketTransport {
	if codec == nil {
		codec = JSONCodec()
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketTransport{
		system:      sys,
		codec:       codec,
		log:         log,
		connections: make(map[*websocket.Conn]*PID),
	}
}

// Handler returns a websocket.Handler that spawns one connectionActor
// per incoming connection, forwarding decoded envelopes to target.
// Only OUTBOUND_DELIVER messages sent to the connection actor are
// written back over the socket; target's replies are not routed there
// automatically. target identifies
// the local actor this connection talks to (e.g. a per-session
// gateway actor); callers typically close over it per-route.
func (t *WebSocketTransport) Handler(target Address) websocket.Handler {
	return func(ws *websocket.Conn) {
		pid, err := t.system.Spawn(NewProps(func() Behavior {
			return newConnectionBehavior(t, ws, target)
		}).WithEphemeral(), nil)
		if err != nil {
			t.log.Error("failed to spawn connection actor", slog.Any("error", err))
			_ = ws.Close()
			return
		}

		t.register(ws, pid)
		defer t.unregister(ws)

		t.readLoop(ws, pid)
	}
}

func (t *WebSocketTransport) register(ws *websocket.Conn, pid *PID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connections[ws] = pid
	t.log.Info("connection opened", slog.String("remote", remoteAddr(ws)), slog.Int("total", len(t.connections)))
}

func (t *WebSocketTransport) unregister(ws *websocket.Conn) {
	t.mu.Lock()
	pid, ok := t.connections[ws]
	delete(t.connections, ws)
	t.mu.Unlock()

	if ok && pid != nil {
		t.system.Send(NewAddress(pid.String()), NewMessage(MsgConnectionClosed, nil), nil)
	}
	_ = ws.Close()
	t.log.Info("connection closed", slog.String("remote", remoteAddr(ws)))
}

// readLoop decodes one Envelope per frame and forwards it to pid as a
// TRANSPORT_INBOUND message, matching the teacher's dedicated
// goroutine-per-connection read loop.
func (t *WebSocketTransport) readLoop(ws *websocket.Conn, pid *PID) {
	for {
		var env Envelope
		_ = ws.SetReadDeadline(time.Now().Add(90 * time.Second))
		if err := websocket.JSON.Receive(ws, &env); err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Time{})

		msg, err := DecodeEnvelope(t.codec, env)
		if err != nil {
			t.log.Warn("dropping undecodable envelope", slog.Any("error", err))
			continue
		}

		if err := t.system.Send(NewAddress(pid.String()), NewMessage(MsgTransportInbound, msg), nil); err != nil {
			return
		}
	}
}

// Write encodes msg as an Envelope and sends it over ws.
func (t *WebSocketTransport) Write(ws *websocket.Conn, msg Message, source, target string) error {
	env, err := EncodeEnvelope(t.codec, msg, source, target, 4096)
	if err != nil {
		return fmt.Errorf("bollywood: encoding outbound envelope: %w", err)
	}
	return websocket.JSON.Send(ws, env)
}

func remoteAddr(ws *websocket.Conn) string {
	if ws == nil {
		return "unknown"
	}
	if addr := ws.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// Transport message types, delivered to the actor behind a connection.
const (
	MsgTransportInbound = "TRANSPORT_INBOUND"
	MsgConnectionClosed = "CONNECTION_CLOSED"
)

// connectionBehavior is a minimal per-connection actor: it forwards
// each TRANSPORT_INBOUND message to target and writes any OUTBOUND
// event it's handed back over the socket, the generalized form of the
// teacher's ConnectionHandlerActor stripped of game specifics.
type connectionBehavior struct {
	transport *WebSocketTransport
	conn      *websocket.Conn
	target    Address
}

func newConnectionBehavior(t *WebSocketTransport, conn *websocket.Conn, target Address) Behavior {
	return &connectionBehavior{transport: t, conn: conn, target: target}
}

func (c *connectionBehavior) OnStart(self *PID) (any, error) { return nil, nil }

func (c *connectionBehavior) OnMessage(mc MessageContext) (Plan, error) {
	switch mc.Message.Type {
	case MsgTransportInbound:
		inner := mc.Message.Payload.(Message)
		return Send(c.target, inner, FireAndForget), nil

	case MsgOutboundDeliver:
		payload := mc.Message.Payload.(Message)
		if err := c.transport.Write(c.conn, payload, mc.Self.String(), c.target.String()); err != nil {
			return Nothing(), fmt.Errorf("bollywood: writing outbound frame: %w", err)
		}
		return Nothing(), nil

	case MsgConnectionClosed:
		return Nothing(), nil

	default:
		return Nothing(), nil
	}
}

func (c *connectionBehavior) OnStop(any) error {
	return c.conn.Close()
}

// MsgOutboundDeliver is sent to a connection actor by application code
// (or another actor) to push one message out over its socket.
const MsgOutboundDeliver = "OUTBOUND_DELIVER"

// dialErrorIsClosed reports whether err is a *net.OpError, the error
// type a closed or failed connection surfaces as. It does not tell a
// peer close apart from other network-level failures.
func dialErrorIsClosed(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*net.OpError)
	return ok
}
