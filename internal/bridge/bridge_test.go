package bridge

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func startServer(t *testing.T, token string) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		ListenAddr:        "127.0.0.1:0",
		Token:             token,
		AuthTimeout:       500 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func startClient(t *testing.T, addr, token string) *Client {
	t.Helper()
	cli, err := NewClient(ClientConfig{
		ConnectAddr:       addr,
		Token:             token,
		AuthTimeout:       500 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	cli.Start()
	t.Cleanup(cli.Stop)
	return cli
}

func waitConnected(t *testing.T, srv *Server, cli *Client) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Connected() && cli.Connected() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("client and server never both connected")
}

func TestHandshake_And_RequestResponse(t *testing.T) {
	srv := startServer(t, "secret")
	cli := startClient(t, srv.Addr(), "secret")
	waitConnected(t, srv, cli)

	// The worker answers status requests from the coordinator.
	cli.OnMessage(TypeStatusRequest, func(msg *Message) {
		resp := msg.Reply(TypeStatusResponse, map[string]string{"active": "2"})
		if err := cli.Send(resp); err != nil {
			t.Errorf("reply send error = %v", err)
		}
	})

	req := NewMessage(TypeStatusRequest, nil)
	resp := srv.SendAndWait(req, 2*time.Second)
	if resp == nil {
		t.Fatal("SendAndWait() = nil, want status response")
	}
	if resp.Type != TypeStatusResponse {
		t.Errorf("response type = %s, want %s", resp.Type, TypeStatusResponse)
	}
	if resp.Payload["active"] != "2" {
		t.Errorf("response payload = %v", resp.Payload)
	}
}

func TestSendAndWait_TimeoutRemovesSlot(t *testing.T) {
	srv := startServer(t, "secret")
	cli := startClient(t, srv.Addr(), "secret")
	waitConnected(t, srv, cli)

	// No handler is registered on the client, so no reply ever comes.
	req := NewMessage(TypeMemorySync, map[string]string{"k": "v"})
	start := time.Now()
	resp := srv.SendAndWait(req, 150*time.Millisecond)
	if resp != nil {
		t.Fatalf("SendAndWait() = %v, want nil on timeout", resp)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if srv.pending.contains(req.ID) {
		t.Error("pending table still contains the timed-out correlation ID")
	}
}

func TestAuth_BadTokenRefused(t *testing.T) {
	srv := startServer(t, "secret")

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	req := NewMessage(TypeAuth, map[string]string{"token": "wrong"})
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		t.Fatal(err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no refusal notice received")
	}
	var notice Message
	if err := json.Unmarshal(scanner.Bytes(), &notice); err != nil {
		t.Fatal(err)
	}
	if notice.Payload["status"] != statusDenied {
		t.Errorf("status = %q, want %q", notice.Payload["status"], statusDenied)
	}
	if notice.Payload["reason"] != "bad token" {
		t.Errorf("reason = %q, want bad token", notice.Payload["reason"])
	}
}

func TestAuth_TimeoutRefused(t *testing.T) {
	srv := startServer(t, "secret")

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Send nothing: the server must close with a timeout notice.
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no timeout notice received")
	}
	var notice Message
	if err := json.Unmarshal(scanner.Bytes(), &notice); err != nil {
		t.Fatal(err)
	}
	if notice.Payload["status"] != statusTimedOut {
		t.Errorf("status = %q, want %q", notice.Payload["status"], statusTimedOut)
	}
}

func TestServer_NewConnectionSupersedes(t *testing.T) {
	srv := startServer(t, "secret")

	first := startClient(t, srv.Addr(), "secret")
	waitConnected(t, srv, first)

	second := startClient(t, srv.Addr(), "secret")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if second.Connected() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !second.Connected() {
		t.Fatal("second client never connected")
	}
	// The first client's session was closed by the supersede; give its
	// read loop a moment to notice.
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && first.Connected() {
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatch_UnknownTypeDropped(t *testing.T) {
	p := newPeer("test", 0)
	handled := false
	p.OnMessage(TypeTaskStatus, func(*Message) { handled = true })

	p.dispatch(&Message{Type: MessageType("gibberish")})
	if handled {
		t.Error("unknown type reached a handler")
	}

	p.dispatch(&Message{Type: TypeTaskStatus})
	if !handled {
		t.Error("known type did not reach its handler")
	}
}
