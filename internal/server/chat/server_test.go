package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/protocol"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memAuth keeps credentials in a map. The username "panic" makes it panic and
// "broken" makes it fail like an unreachable database.
type memAuth struct {
	mu    sync.Mutex
	users map[string]string
}

func newMemAuth() *memAuth {
	return &memAuth{users: map[string]string{}}
}

func (a *memAuth) check(username, password string) error {
	switch {
	case username == "panic":
		panic("credential store exploded")
	case username == "broken":
		return errors.New("database is locked")
	case username == "" || password == "":
		return common.ErrInvalidCredentials
	}
	return nil
}

func (a *memAuth) Create(_ context.Context, username, password string) error {
	if err := a.check(username, password); err != nil {
		return err
	}
	if strings.EqualFold(username, common.ServerSenderName) {
		return common.ErrReservedUsername
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[username]; ok {
		return common.ErrDuplicateUsername
	}
	a.users[username] = password
	return nil
}

func (a *memAuth) Verify(_ context.Context, username, password string) error {
	if err := a.check(username, password); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	stored, ok := a.users[username]
	if !ok {
		return common.ErrorNotFound
	}
	if stored != password {
		return common.ErrWrongPassword
	}
	return nil
}

type testServer struct {
	srv    *Server
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, a Authenticator, bopts []BroadcasterOption, opts ...Option) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	reg := NewRegistry()
	srv := NewServer(ln.Addr().String(), reg, NewBroadcaster(reg, logging.Nop{}, bopts...), a, logging.Nop{}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{srv: srv, addr: ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() { ts.done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ts
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *protocol.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, r: protocol.NewReader(conn, 0)}
}

func (c *testClient) sendRaw(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *testClient) send(req protocol.Request) {
	c.t.Helper()
	frame, err := protocol.Marshal(req)
	require.NoError(c.t, err)
	_, err = c.conn.Write(frame)
	require.NoError(c.t, err)
}

func (c *testClient) next(timeout time.Duration) ([]byte, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	return c.r.ReadFrame()
}

func (c *testClient) response() *protocol.Response {
	c.t.Helper()
	frame, err := c.next(2 * time.Second)
	require.NoError(c.t, err)
	resp, err := protocol.ParseResponse(frame)
	require.NoError(c.t, err)
	return resp
}

func (c *testClient) event() protocol.Event {
	c.t.Helper()
	frame, err := c.next(2 * time.Second)
	require.NoError(c.t, err)
	ev, err := protocol.ParseEvent(frame)
	require.NoError(c.t, err)
	return *ev
}

func (c *testClient) expectEvent(sender, content string) {
	c.t.Helper()
	assert.Equal(c.t, protocol.Event{Sender: sender, Content: content}, c.event())
}

func (c *testClient) expectSilence() {
	c.t.Helper()
	frame, err := c.next(200 * time.Millisecond)
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		c.t.Fatalf("expected no frame, got %q (err %v)", frame, err)
	}
}

func (c *testClient) expectEOF() {
	c.t.Helper()
	for {
		_, err := c.next(2 * time.Second)
		if err == nil {
			continue
		}
		require.ErrorIs(c.t, err, io.EOF)
		return
	}
}

// join signs up username and consumes the response and its own join
// announcement.
func (c *testClient) join(username string) {
	c.t.Helper()
	c.send(protocol.Request{Command: protocol.CommandSignup, Username: username, Password: "pw-" + username})
	resp := c.response()
	require.Equal(c.t, protocol.StatusSuccess, resp.Status, resp.Message)
	c.expectEvent(common.ServerSenderName, username+" has joined the chat.")
}

func TestServer_SignupThenLogin(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil)

	c := dial(t, ts.addr)
	c.send(protocol.Request{Command: protocol.CommandSignup, Username: "alice", Password: "secret"})
	resp := c.response()
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, "Account created successfully. You are now logged in.", resp.Message)
	assert.Empty(t, resp.Token, "no token without an issuer")
	c.expectEvent("Server", "alice has joined the chat.")
	require.NoError(t, c.conn.Close())

	require.Eventually(t, func() bool { return ts.srv.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	c2 := dial(t, ts.addr)
	c2.send(protocol.Request{Command: protocol.CommandLogin, Username: "alice", Password: "secret"})
	resp = c2.response()
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Equal(t, "Login successful.", resp.Message)
	c2.expectEvent("Server", "alice has joined the chat.")
}

func TestServer_AuthFailuresAllowRetry(t *testing.T) {
	a := newMemAuth()
	require.NoError(t, a.Create(context.Background(), "bob", "right"))
	ts := startServer(t, a, nil)

	c := dial(t, ts.addr)

	tests := []struct {
		req    protocol.Request
		status protocol.Status
		msg    string
	}{
		{protocol.Request{Command: "signup", Username: "bob", Password: "x"}, protocol.StatusFail, "Username already taken."},
		{protocol.Request{Command: "login", Username: "bob", Password: "wrong"}, protocol.StatusFail, "Incorrect password."},
		{protocol.Request{Command: "login", Username: "nobody", Password: "x"}, protocol.StatusFail, "User not found."},
		{protocol.Request{Command: "signup", Username: "", Password: "x"}, protocol.StatusFail, "Username and password are required."},
		{protocol.Request{Command: "signup", Username: "Server", Password: "x"}, protocol.StatusFail, "This username is reserved."},
		{protocol.Request{Command: "login", Username: "broken", Password: "x"}, protocol.StatusError, "Internal server error."},
		{protocol.Request{Command: "message", Content: "hi"}, protocol.StatusFail, "Please log in or sign up first."},
		{protocol.Request{Command: "dance"}, protocol.StatusError, "Unknown command."},
		{protocol.Request{Command: "resume", Token: "abc"}, protocol.StatusFail, "Session resume is not available."},
	}
	for _, tt := range tests {
		c.send(tt.req)
		resp := c.response()
		assert.Equal(t, tt.status, resp.Status, "command %q", tt.req.Command)
		assert.Equal(t, tt.msg, resp.Message, "command %q", tt.req.Command)
	}

	assert.Equal(t, 0, ts.srv.Registry().Len())

	c.send(protocol.Request{Command: "login", Username: "bob", Password: "right"})
	assert.Equal(t, protocol.StatusSuccess, c.response().Status)
	c.expectEvent("Server", "bob has joined the chat.")
}

func TestServer_MalformedFramesIgnored(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil)
	c := dial(t, ts.addr)

	c.sendRaw("this is not json")
	c.sendRaw("null")
	c.sendRaw(`["login"]`)
	c.sendRaw(`{"command": 42}`)
	c.expectSilence()

	c.join("carol")

	c.sendRaw("{broken")
	c.expectSilence()
}

func TestServer_OversizedFrameIgnored(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil, WithMaxFrameSize(128))
	c := dial(t, ts.addr)

	c.sendRaw(`{"command":"signup","username":"` + strings.Repeat("x", 500) + `","password":"p"}`)
	c.expectSilence()

	c.join("dave")
}

func TestServer_TwoClientsChat(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil)

	alice := dial(t, ts.addr)
	alice.join("alice")

	bob := dial(t, ts.addr)
	bob.join("bob")
	alice.expectEvent("Server", "bob has joined the chat.")

	bob.send(protocol.Request{Command: protocol.CommandMessage, Content: "hello"})
	alice.expectEvent("bob", "hello")
	bob.expectEvent("bob", "hello")

	// only message commands are acted on once joined
	alice.send(protocol.Request{Command: protocol.CommandLogin, Username: "alice", Password: "pw-alice"})
	alice.send(protocol.Request{Command: protocol.CommandMessage, Content: "hi bob"})
	alice.expectEvent("alice", "hi bob")
	bob.expectEvent("alice", "hi bob")
}

func TestServer_SenderExcluded(t *testing.T) {
	ts := startServer(t, newMemAuth(), []BroadcasterOption{WithSenderExcluded(true)})

	alice := dial(t, ts.addr)
	alice.join("alice")
	bob := dial(t, ts.addr)
	bob.join("bob")
	alice.expectEvent("Server", "bob has joined the chat.")

	bob.send(protocol.Request{Command: protocol.CommandMessage, Content: "only for alice"})
	alice.expectEvent("bob", "only for alice")
	bob.expectSilence()
}

func TestServer_LeaveAnnouncedOnce(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil)

	alice := dial(t, ts.addr)
	alice.join("alice")
	bob := dial(t, ts.addr)
	bob.join("bob")
	alice.expectEvent("Server", "bob has joined the chat.")

	require.NoError(t, bob.conn.Close())

	alice.expectEvent("Server", "bob has left the chat.")
	alice.expectSilence()

	require.Eventually(t, func() bool { return ts.srv.Registry().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return ts.srv.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_UnauthenticatedDisconnectIsSilent(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil)

	alice := dial(t, ts.addr)
	alice.join("alice")

	lurker := dial(t, ts.addr)
	lurker.send(protocol.Request{Command: "login", Username: "nobody", Password: "x"})
	lurker.response()
	require.NoError(t, lurker.conn.Close())

	alice.expectSilence()
}

func TestServer_ResumeWithToken(t *testing.T) {
	issuer := auth.NewTokenIssuer("test-secret", time.Minute)
	ts := startServer(t, newMemAuth(), nil, WithTokenIssuer(issuer))

	c := dial(t, ts.addr)
	c.send(protocol.Request{Command: "signup", Username: "erin", Password: "pw"})
	resp := c.response()
	require.Equal(t, protocol.StatusSuccess, resp.Status)
	require.NotEmpty(t, resp.Token)
	c.expectEvent("Server", "erin has joined the chat.")
	require.NoError(t, c.conn.Close())

	c2 := dial(t, ts.addr)
	c2.send(protocol.Request{Command: "resume", Token: "garbage"})
	bad := c2.response()
	assert.Equal(t, protocol.StatusFail, bad.Status)
	assert.Equal(t, "Invalid or expired session token.", bad.Message)

	c2.send(protocol.Request{Command: "resume", Token: resp.Token})
	ok := c2.response()
	assert.Equal(t, protocol.StatusSuccess, ok.Status)
	assert.Equal(t, "Session resumed.", ok.Message)
	assert.NotEmpty(t, ok.Token)
	c2.expectEvent("Server", "erin has joined the chat.")
}

func TestServer_PanicIsolatedToConnection(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil)

	alice := dial(t, ts.addr)
	alice.join("alice")

	bad := dial(t, ts.addr)
	bad.send(protocol.Request{Command: "login", Username: "panic", Password: "x"})
	bad.expectEOF()

	alice.send(protocol.Request{Command: "message", Content: "still here"})
	alice.expectEvent("alice", "still here")

	other := dial(t, ts.addr)
	other.join("frank")
	alice.expectEvent("Server", "frank has joined the chat.")
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	ts := startServer(t, newMemAuth(), nil)

	alice := dial(t, ts.addr)
	alice.join("alice")
	idle := dial(t, ts.addr)
	require.Eventually(t, func() bool { return ts.srv.Connections() == 2 }, 2*time.Second, 10*time.Millisecond)

	ts.cancel()

	select {
	case err := <-ts.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	alice.expectEOF()
	idle.expectEOF()
	assert.Equal(t, 0, ts.srv.Connections())
	assert.Equal(t, 0, ts.srv.Registry().Len())

	// keep the cleanup from waiting on an already drained channel
	ts.done <- nil
}

func TestServer_RunBadAddress(t *testing.T) {
	reg := NewRegistry()
	srv := NewServer("127.0.0.1:99999", reg, NewBroadcaster(reg, logging.Nop{}), newMemAuth(), logging.Nop{})
	assert.Error(t, srv.Run(context.Background()))
}

// stubConn is a Conn that never delivers frames and records writes.
type stubConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newStubConn() *stubConn { return &stubConn{closed: make(chan struct{})} }

func (c *stubConn) ReadFrame() ([]byte, error) {
	<-c.closed
	return nil, net.ErrClosed
}

func (c *stubConn) WriteFrame(frame []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(frame)
	return nil
}

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *stubConn) RemoteAddr() string { return "stub" }

func TestSession_DeliverNeverBlocks(t *testing.T) {
	reg := NewRegistry()
	srv := NewServer("", reg, NewBroadcaster(reg, logging.Nop{}), newMemAuth(), logging.Nop{}, WithOutboxSize(1))

	// writer is not running, so the outbox fills up
	sess := newSession(srv, newStubConn())
	require.NoError(t, sess.Deliver([]byte("a\n")))
	assert.ErrorIs(t, sess.Deliver([]byte("b\n")), common.ErrQueueFull)

	sess.Close()
	sess.Close()
	assert.ErrorIs(t, sess.Deliver([]byte("c\n")), common.ErrSessionClosed)
}

func TestSession_ServeConnLifecycle(t *testing.T) {
	reg := NewRegistry()
	srv := NewServer("", reg, NewBroadcaster(reg, logging.Nop{}), newMemAuth(), logging.Nop{})

	conn := newStubConn()
	done := make(chan struct{})
	go func() {
		srv.ServeConn(context.Background(), conn)
		close(done)
	}()

	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)
	_ = conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return")
	}
	assert.Equal(t, 0, srv.Connections())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "relaying", StateRelaying.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
