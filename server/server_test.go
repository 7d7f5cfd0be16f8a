package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rishta/db"
	"rishta/identity"
	"rishta/lifecycle"
	"rishta/notify"
	"rishta/protocol"
)

// setupTestServer creates a server over a temporary database.
func setupTestServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := lifecycle.NewService(database, notify.NewHub(), lifecycle.Options{Logger: logger})
	ident := identity.NewService(database, "test-secret", time.Hour)

	config := &ServerConfig{
		Port:         0,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return New(svc, ident, config, logger)
}

type client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// connect starts a session over net.Pipe and returns the client end.
func connect(t *testing.T, srv *Server) *client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.handleConnection(ctx, serverConn)
	t.Cleanup(func() {
		cancel()
		clientConn.Close()
	})
	return &client{conn: clientConn, reader: bufio.NewReader(clientConn)}
}

// readResponse reads one line from the server.
func (c *client) readResponse(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
}

// sendRequest writes one line to the server.
func (c *client) sendRequest(t *testing.T, request string) {
	t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write([]byte(request + "\n")); err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
}

// call sends request and parses the reply.
func (c *client) call(t *testing.T, request string) *protocol.Packet {
	t.Helper()
	c.sendRequest(t, request)
	line := c.readResponse(t)
	pkt, err := protocol.ParsePacket(line)
	if err != nil {
		t.Fatalf("Failed to parse response %q: %v", line, err)
	}
	return pkt
}

// login registers and authenticates login, returning the user id.
func (c *client) login(t *testing.T, login string) string {
	t.Helper()
	reg := c.call(t, "reg|"+login+"|secret1")
	if reg.Type != "ok" || reg.Arg(0) != "reg" {
		t.Fatalf("Expected ok|reg, got %s %v", reg.Type, reg.Args)
	}
	auth := c.call(t, "auth|"+login+"|secret1")
	if auth.Type != "ok" || auth.Arg(0) != "auth" || auth.Arg(1) != reg.Arg(1) {
		t.Fatalf("Expected ok|auth|%s, got %s %v", reg.Arg(1), auth.Type, auth.Args)
	}
	return auth.Arg(1)
}

func TestPing(t *testing.T) {
	srv := setupTestServer(t)
	c := connect(t, srv)

	c.sendRequest(t, "ping")
	if got := c.readResponse(t); got != "pong" {
		t.Errorf("Expected 'pong', got '%s'", got)
	}
}

func TestRegisterAndAuth(t *testing.T) {
	srv := setupTestServer(t)
	c := connect(t, srv)

	c.login(t, "alice")

	dup := c.call(t, "reg|alice|secret1")
	if dup.Type != "fail" || dup.Arg(0) != "reg" || dup.Arg(1) != "login already taken" {
		t.Errorf("Expected fail|reg|login already taken, got %s %v", dup.Type, dup.Args)
	}

	other := connect(t, srv)
	bad := other.call(t, "auth|alice|wrong-password")
	if bad.Type != "fail" || bad.Arg(0) != "auth" {
		t.Errorf("Expected fail|auth, got %s %v", bad.Type, bad.Args)
	}

	missing := other.call(t, "auth|alice")
	if missing.Type != "fail" || missing.Arg(1) != "Invalid credentials" {
		t.Errorf("Expected fail|auth|Invalid credentials, got %s %v", missing.Type, missing.Args)
	}
}

func TestCommandsRequireAuth(t *testing.T) {
	srv := setupTestServer(t)
	c := connect(t, srv)

	for _, cmd := range []string{"like|x", "conv|x", "msg|x|hi", "hist|x", "sub|x", "list", "read|x"} {
		resp := c.call(t, cmd)
		op := strings.SplitN(cmd, "|", 2)[0]
		if resp.Type != "fail" || resp.Arg(0) != op || resp.Arg(1) != "Not authenticated" {
			t.Errorf("%s: expected fail|%s|Not authenticated, got %s %v", cmd, op, resp.Type, resp.Args)
		}
	}
}

func TestUnknownPacket(t *testing.T) {
	srv := setupTestServer(t)
	c := connect(t, srv)

	resp := c.call(t, "teleport|now")
	if resp.Type != "fail" || resp.Arg(0) != "Unknown packet type" {
		t.Errorf("Expected fail|Unknown packet type, got %s %v", resp.Type, resp.Args)
	}
}

func TestLikeAndAccept(t *testing.T) {
	srv := setupTestServer(t)
	alice := connect(t, srv)
	bob := connect(t, srv)
	aliceID := alice.login(t, "alice")
	bobID := bob.login(t, "bob")

	first := alice.call(t, "like|"+bobID)
	if first.Type != "ok" || first.Arg(1) != "created" {
		t.Fatalf("Expected ok|like|created, got %s %v", first.Type, first.Args)
	}
	second := alice.call(t, "like|"+bobID)
	if second.Arg(1) != "pending" || second.Arg(2) != first.Arg(2) {
		t.Errorf("Expected pending for the same request, got %v", second.Args)
	}

	self := alice.call(t, "like|"+aliceID)
	if self.Type != "fail" {
		t.Errorf("Expected self like to fail, got %s %v", self.Type, self.Args)
	}

	reqs := bob.call(t, "reqs|incoming")
	if reqs.Type != "reqs" || reqs.Arg(0) != first.Arg(2) || reqs.Arg(1) != aliceID || reqs.Arg(3) != "sent" {
		t.Errorf("Unexpected incoming requests: %v", reqs.Args)
	}

	before := bob.call(t, "conn|"+aliceID)
	if before.Type != "ok" || before.Arg(0) != "conn" || before.Arg(1) != "false" {
		t.Errorf("Expected ok|conn|false before accept, got %s %v", before.Type, before.Args)
	}

	wrong := alice.call(t, "acc|"+first.Arg(2))
	if wrong.Type != "fail" || wrong.Arg(0) != "acc" {
		t.Errorf("Expected sender accept to fail, got %s %v", wrong.Type, wrong.Args)
	}
	acc := bob.call(t, "acc|"+first.Arg(2))
	if acc.Type != "ok" || acc.Arg(0) != "acc" {
		t.Errorf("Expected ok|acc, got %s %v", acc.Type, acc.Args)
	}

	third := alice.call(t, "like|"+bobID)
	if third.Arg(1) != "connected" {
		t.Errorf("Expected connected, got %v", third.Args)
	}

	after := alice.call(t, "conn|"+bobID)
	if after.Arg(1) != "true" {
		t.Errorf("Expected ok|conn|true after accept, got %v", after.Args)
	}
}

func TestConversationFlow(t *testing.T) {
	srv := setupTestServer(t)
	alice := connect(t, srv)
	bob := connect(t, srv)
	aliceID := alice.login(t, "alice")
	bobID := bob.login(t, "bob")

	conv := alice.call(t, "conv|"+bobID)
	if conv.Type != "conv" || conv.Arg(1) != bobID {
		t.Fatalf("Expected conv|<id>|%s, got %s %v", bobID, conv.Type, conv.Args)
	}
	convID := conv.Arg(0)

	same := bob.call(t, "conv|"+aliceID)
	if same.Arg(0) != convID {
		t.Errorf("Expected the same conversation from both sides, got %s and %s", convID, same.Arg(0))
	}

	sub := bob.call(t, "sub|"+convID)
	if sub.Type != "ok" || sub.Arg(0) != "sub" {
		t.Fatalf("Expected ok|sub, got %s %v", sub.Type, sub.Args)
	}

	sent := alice.call(t, "msg|"+convID+"|"+protocol.Escape("hi, bob|how are you?"))
	if sent.Type != "ok" || sent.Arg(0) != "msg" {
		t.Fatalf("Expected ok|msg, got %s %v", sent.Type, sent.Args)
	}

	push, err := protocol.ParsePacket(bob.readResponse(t))
	if err != nil {
		t.Fatalf("Failed to parse push: %v", err)
	}
	if push.Type != "msg" || push.Arg(0) != convID || push.Arg(1) != aliceID || push.Arg(2) != "hi, bob|how are you?" || push.Arg(4) != sent.Arg(1) {
		t.Errorf("Unexpected push: %s %v", push.Type, push.Args)
	}

	empty := alice.call(t, "msg|"+convID+"|   ")
	if empty.Type != "fail" || empty.Arg(1) != "message content must not be empty" {
		t.Errorf("Expected empty message to fail, got %s %v", empty.Type, empty.Args)
	}

	bob.sendRequest(t, "hist|"+convID)
	line := bob.readResponse(t)
	if !strings.HasPrefix(line, "hist|"+convID+"|msg|1|"+aliceID+"|hi\\, bob\\|how are you?|") || !strings.HasSuffix(line, "|false") {
		t.Errorf("Unexpected history: %q", line)
	}

	list := bob.call(t, "list")
	if list.Type != "list" || list.Arg(0) != convID || list.Arg(1) != aliceID || list.Arg(2) != "1" {
		t.Errorf("Unexpected list: %v", list.Args)
	}

	read := bob.call(t, "read|"+convID)
	if read.Type != "ok" || read.Arg(1) != "1" {
		t.Errorf("Expected ok|read|1, got %s %v", read.Type, read.Args)
	}

	unsub := bob.call(t, "unsub")
	if unsub.Type != "ok" || unsub.Arg(0) != "unsub" || unsub.Arg(1) != convID {
		t.Errorf("Expected ok|unsub|%s, got %s %v", convID, unsub.Type, unsub.Args)
	}
	again := bob.call(t, "unsub")
	if again.Arg(1) != "" {
		t.Errorf("Expected no conversation on a second unsub, got %v", again.Args)
	}
	if n := srv.svc.Hub().Count(); n != 0 {
		t.Errorf("Expected no subscriptions after unsub, got %d", n)
	}
}

func TestNonParticipantCannotSubscribe(t *testing.T) {
	srv := setupTestServer(t)
	alice := connect(t, srv)
	bob := connect(t, srv)
	carol := connect(t, srv)
	alice.login(t, "alice")
	bobID := bob.login(t, "bob")
	carol.login(t, "carol")

	convID := alice.call(t, "conv|"+bobID).Arg(0)

	resp := carol.call(t, "sub|"+convID)
	if resp.Type != "fail" || resp.Arg(1) != "not a participant of this conversation" {
		t.Errorf("Expected fail|sub|not a participant, got %s %v", resp.Type, resp.Args)
	}
	resp = carol.call(t, "msg|"+convID+"|hello")
	if resp.Type != "fail" || resp.Arg(0) != "msg" {
		t.Errorf("Expected fail|msg, got %s %v", resp.Type, resp.Args)
	}
}

func TestByeReleasesSubscription(t *testing.T) {
	srv := setupTestServer(t)
	alice := connect(t, srv)
	bob := connect(t, srv)
	alice.login(t, "alice")
	bobID := bob.login(t, "bob")

	convID := alice.call(t, "conv|"+bobID).Arg(0)
	alice.call(t, "sub|"+convID)
	if n := srv.svc.Hub().Count(); n != 1 {
		t.Fatalf("Expected one subscription, got %d", n)
	}

	alice.sendRequest(t, "bye")
	if got := alice.readResponse(t); got != "bye" {
		t.Errorf("Expected 'bye', got '%s'", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.svc.Hub().Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.svc.Hub().Count(); n != 0 {
		t.Errorf("Expected subscription released after bye, got %d", n)
	}

	alice.conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := alice.reader.ReadString('\n'); err == nil {
		t.Error("Expected connection to be closed after bye")
	}
}

func TestGetStats(t *testing.T) {
	srv := setupTestServer(t)
	alice := connect(t, srv)
	alice.login(t, "alice")
	anon := connect(t, srv)
	anon.call(t, "ping")

	stats := srv.GetStats()
	if !strings.Contains(stats, "connections=2") || !strings.Contains(stats, "users=alice") {
		t.Errorf("Unexpected stats: %s", stats)
	}
}

func TestHelp(t *testing.T) {
	srv := setupTestServer(t)
	c := connect(t, srv)

	c.sendRequest(t, "help")
	line := c.readResponse(t)
	if !strings.HasPrefix(line, "help|") || !strings.Contains(line, "sub") || !strings.Contains(line, "like") {
		t.Errorf("Unexpected help: %s", line)
	}
}
