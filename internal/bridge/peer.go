package bridge

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// ErrNotConnected indicates there is no live connection to send on.
var ErrNotConnected = errors.New("bridge not connected")

// maxEnvelopeSize bounds a single newline-delimited envelope.
const maxEnvelopeSize = 1 << 20

// Handler processes an unsolicited incoming message.
type Handler func(msg *Message)

// peer holds the send/receive machinery shared by the server and client
// roles: one live connection, a pending-response table, per-type handlers and
// heartbeat emission.
type peer struct {
	name       string
	hbInterval time.Duration

	pending *pendingTable

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder

	hmu      sync.RWMutex
	handlers map[MessageType]Handler
}

func newPeer(name string, hbInterval time.Duration) *peer {
	return &peer{
		name:       name,
		hbInterval: hbInterval,
		pending:    newPendingTable(),
		handlers:   make(map[MessageType]Handler),
	}
}

// OnMessage registers the handler for unsolicited messages of the given type.
func (p *peer) OnMessage(t MessageType, h Handler) {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	p.handlers[t] = h
}

// setConn promotes a connection to live, superseding any existing one.
func (p *peer) setConn(conn net.Conn) {
	p.mu.Lock()
	old := p.conn
	p.conn = conn
	if conn != nil {
		p.enc = json.NewEncoder(conn)
	} else {
		p.enc = nil
	}
	p.mu.Unlock()

	if old != nil && old != conn {
		old.Close()
	}
}

// dropConn clears the live connection if it is still the given one.
func (p *peer) dropConn(conn net.Conn) {
	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
		p.enc = nil
	}
	p.mu.Unlock()
	conn.Close()
}

// Connected reports whether a live connection exists.
func (p *peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// Send writes one envelope, fire-and-forget.
func (p *peer) Send(msg *Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enc == nil {
		return ErrNotConnected
	}
	if err := p.enc.Encode(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// SendAndWait sends an envelope and blocks until a message with the same
// correlation ID arrives or the timeout elapses. It returns nil on timeout,
// with the pending slot removed.
func (p *peer) SendAndWait(msg *Message, timeout time.Duration) *Message {
	if msg.ID == "" {
		*msg = *NewMessage(msg.Type, msg.Payload)
	}
	ch := p.pending.register(msg.ID)

	if err := p.Send(msg); err != nil {
		p.pending.remove(msg.ID)
		log.Printf("[bridge:%s] send-and-wait %s: %v", p.name, msg.Type, err)
		return nil
	}

	select {
	case resp := <-ch:
		return resp
	case <-time.After(timeout):
		p.pending.remove(msg.ID)
		return nil
	}
}

// newScanner wraps a connection for line-delimited reads. The same scanner
// must be used for the handshake and the read loop so no buffered envelope
// is lost between them.
func newScanner(conn net.Conn) *bufio.Scanner {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxEnvelopeSize)
	return scanner
}

// readLoop consumes envelopes until the connection fails. Responses resolve
// pending slots; everything else dispatches to the registered handler.
// Malformed envelopes and unknown types are dropped without tearing down the
// channel.
func (p *peer) readLoop(conn net.Conn, scanner *bufio.Scanner) {
	for {
		if p.hbInterval > 0 {
			conn.SetReadDeadline(time.Now().Add(3 * p.hbInterval))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				log.Printf("[bridge:%s] connection lost: %v", p.name, err)
			}
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Printf("[bridge:%s] warning: dropping malformed envelope: %v", p.name, err)
			continue
		}

		p.dispatch(&msg)
	}
}

// dispatch routes one incoming envelope.
func (p *peer) dispatch(msg *Message) {
	if msg.Type == TypeHeartbeat {
		return
	}
	if msg.ID != "" && p.pending.resolve(msg) {
		return
	}
	if !knownTypes[msg.Type] {
		log.Printf("[bridge:%s] warning: dropping unknown message type %q", p.name, msg.Type)
		return
	}

	p.hmu.RLock()
	h := p.handlers[msg.Type]
	p.hmu.RUnlock()
	if h == nil {
		log.Printf("[bridge:%s] warning: no handler for %s, dropping", p.name, msg.Type)
		return
	}
	h(msg)
}

// heartbeatLoop emits heartbeats on the fixed interval until stop closes or
// a send fails.
func (p *peer) heartbeatLoop(stop <-chan struct{}) {
	if p.hbInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.hbInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := p.Send(&Message{Type: TypeHeartbeat}); err != nil {
				return
			}
		}
	}
}
