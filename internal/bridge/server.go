package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// ServerConfig configures the coordinator side of the channel.
type ServerConfig struct {
	// ListenAddr is the TCP accept address.
	ListenAddr string
	// Token is the shared bearer token workers must present.
	Token string
	// AuthTimeout bounds how long an unauthenticated connection may linger.
	AuthTimeout time.Duration
	// HeartbeatInterval is the fixed liveness-message interval.
	HeartbeatInterval time.Duration
}

// Server accepts one worker-node connection at a time. A new incoming
// connection supersedes (closes) the existing one.
type Server struct {
	*peer
	cfg ServerConfig

	ln   net.Listener
	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewServer creates a Server. Handlers may be registered before Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bridge token must not be empty")
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	return &Server{
		peer: newPeer("server", cfg.HeartbeatInterval),
		cfg:  cfg,
		stop: make(chan struct{}),
	}, nil
}

// Start begins accepting connections. It returns once the listener is bound.
func (s *Server) Start() error {
	var err error
	s.startOnce.Do(func() {
		var ln net.Listener
		ln, err = net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			err = fmt.Errorf("bridge listen on %s: %w", s.cfg.ListenAddr, err)
			return
		}
		s.ln = ln
		log.Printf("[bridge:server] listening on %s", ln.Addr())

		s.wg.Add(1)
		go s.acceptLoop()
	})
	return err
}

// Addr returns the bound listen address, for tests using port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			log.Printf("[bridge:server] accept: %v", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn authenticates one connection and, on success, promotes it to
// the live session.
func (s *Server) handleConn(conn net.Conn) {
	scanner := newScanner(conn)

	msg, ok := s.authenticate(conn, scanner)
	if !ok {
		conn.Close()
		return
	}

	ack := msg.Reply(TypeAuth, map[string]string{payloadStatus: statusOK})
	if err := json.NewEncoder(conn).Encode(ack); err != nil {
		conn.Close()
		return
	}

	log.Printf("[bridge:server] worker connected from %s", conn.RemoteAddr())
	s.setConn(conn)

	hbStop := make(chan struct{})
	go s.heartbeatLoop(hbStop)

	s.readLoop(conn, scanner)

	close(hbStop)
	s.dropConn(conn)
	log.Printf("[bridge:server] worker disconnected")
}

// authenticate reads the mandatory first envelope and validates the token
// within the configured timeout. Denials and timeouts are answered with
// distinguishable close notices.
func (s *Server) authenticate(conn net.Conn, scanner *bufio.Scanner) (*Message, bool) {
	conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	if !scanner.Scan() {
		s.refuse(conn, nil, statusTimedOut, "no auth message received")
		return nil, false
	}

	var msg Message
	if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
		s.refuse(conn, nil, statusDenied, "malformed auth message")
		return nil, false
	}
	if msg.Type != TypeAuth {
		s.refuse(conn, &msg, statusDenied, "first message must be auth")
		return nil, false
	}
	if msg.Payload[payloadToken] != s.cfg.Token {
		s.refuse(conn, &msg, statusDenied, "bad token")
		return nil, false
	}
	return &msg, true
}

// refuse sends a close notice distinguishing the rejection reason.
func (s *Server) refuse(conn net.Conn, req *Message, status, reason string) {
	notice := &Message{
		Type:      TypeAuth,
		Payload:   map[string]string{payloadStatus: status, payloadReason: reason},
		Timestamp: time.Now(),
	}
	if req != nil {
		notice.ID = req.ID
	}
	json.NewEncoder(conn).Encode(notice)
	log.Printf("[bridge:server] refused connection from %s: %s", conn.RemoteAddr(), reason)
}

// Stop closes the listener and any live connection.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.ln != nil {
			s.ln.Close()
		}
		s.setConn(nil)
	})
	s.wg.Wait()
}
