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

// Reconnect backoff bounds: start at the floor, double to the ceiling, reset
// to the floor on every successful connection.
const (
	backoffFloor = 1 * time.Second
	backoffCeil  = 30 * time.Second
)

// ClientConfig configures the worker side of the channel.
type ClientConfig struct {
	// ConnectAddr is the coordinator's address.
	ConnectAddr string
	// Token is the shared bearer token presented during the handshake.
	Token string
	// AuthTimeout bounds how long to wait for the auth acknowledgment.
	AuthTimeout time.Duration
	// HeartbeatInterval is the fixed liveness-message interval.
	HeartbeatInterval time.Duration
}

// Client maintains the connection to the coordinator, reconnecting with
// exponential backoff whenever it drops.
type Client struct {
	*peer
	cfg ClientConfig

	stop chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewClient creates a Client. Handlers may be registered before Start.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bridge token must not be empty")
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 5 * time.Second
	}
	return &Client{
		peer: newPeer("client", cfg.HeartbeatInterval),
		cfg:  cfg,
		stop: make(chan struct{}),
	}, nil
}

// Start launches the connect/reconnect loop in the background.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.run()
	})
}

func (c *Client) run() {
	defer c.wg.Done()

	backoff := backoffFloor
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if c.runSession() {
			backoff = backoffFloor
		}

		select {
		case <-c.stop:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffCeil {
			backoff = backoffCeil
		}
	}
}

// runSession dials, authenticates and serves one connection. It returns true
// if the session was established (resetting the backoff).
func (c *Client) runSession() bool {
	conn, err := net.Dial("tcp", c.cfg.ConnectAddr)
	if err != nil {
		log.Printf("[bridge:client] dial %s: %v", c.cfg.ConnectAddr, err)
		return false
	}

	scanner := newScanner(conn)
	if !c.authenticate(conn, scanner) {
		conn.Close()
		return false
	}

	log.Printf("[bridge:client] connected to %s", c.cfg.ConnectAddr)
	c.setConn(conn)

	hbStop := make(chan struct{})
	go c.heartbeatLoop(hbStop)

	c.readLoop(conn, scanner)

	close(hbStop)
	c.dropConn(conn)
	log.Printf("[bridge:client] disconnected from %s", c.cfg.ConnectAddr)
	return true
}

// authenticate sends the auth envelope first, as the protocol demands, and
// waits for the acknowledgment.
func (c *Client) authenticate(conn net.Conn, scanner *bufio.Scanner) bool {
	req := NewMessage(TypeAuth, map[string]string{payloadToken: c.cfg.Token})
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		log.Printf("[bridge:client] send auth: %v", err)
		return false
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	if !scanner.Scan() {
		log.Printf("[bridge:client] no auth acknowledgment")
		return false
	}
	var resp Message
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		log.Printf("[bridge:client] malformed auth acknowledgment: %v", err)
		return false
	}
	if resp.Type != TypeAuth || resp.Payload[payloadStatus] != statusOK {
		log.Printf("[bridge:client] auth refused: %s (%s)",
			resp.Payload[payloadStatus], resp.Payload[payloadReason])
		return false
	}
	return true
}

// Stop shuts the client down and waits for the reconnect loop to exit.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.setConn(nil)
	})
	c.wg.Wait()
}
