package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/protocol"
	"github.com/google/uuid"
)

// Authenticator is the credential store as seen by a session.
type Authenticator interface {
	Create(ctx context.Context, username, password string) error
	Verify(ctx context.Context, username, password string) error
}

// TokenIssuer hands out and checks session tokens for the resume command.
type TokenIssuer interface {
	Issue(username string) (string, error)
	Resolve(token string) (string, error)
}

type State int32

const (
	StateConnected State = iota
	StateAuthenticating
	StateAuthenticated
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Reply texts sent to clients.
const (
	msgSignupOK       = "Account created successfully. You are now logged in."
	msgLoginOK        = "Login successful."
	msgResumeOK       = "Session resumed."
	msgUsernameTaken  = "Username already taken."
	msgWrongPassword  = "Incorrect password."
	msgUserNotFound   = "User not found."
	msgEmptyFields    = "Username and password are required."
	msgReservedName   = "This username is reserved."
	msgBadToken       = "Invalid or expired session token."
	msgNoResume       = "Session resume is not available."
	msgNotLoggedIn    = "Please log in or sign up first."
	msgUnknownCommand = "Unknown command."
	msgInternal       = "Internal server error."
)

func joinedText(username string) string { return username + " has joined the chat." }
func leftText(username string) string   { return username + " has left the chat." }

// Session owns one client connection. Its reader goroutine runs the
// authentication state machine and then relays chat lines; its writer
// goroutine is the only code that writes to the connection.
type Session struct {
	id     string
	conn   Conn
	srv    *Server
	logger logging.Logger

	state    atomic.Int32
	username string
	joined   bool

	outbox     chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newSession(srv *Server, conn Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       conn,
		srv:        srv,
		logger:     srv.logger.With("session_id", id, "remote_addr", conn.RemoteAddr()),
		outbox:     make(chan []byte, srv.outboxSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Username is empty until the session authenticates.
func (s *Session) Username() string { return s.username }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Deliver queues a broadcast frame without blocking.
func (s *Session) Deliver(frame []byte) error {
	select {
	case <-s.done:
		return common.ErrSessionClosed
	default:
	}

	select {
	case s.outbox <- frame:
		return nil
	case <-s.done:
		return common.ErrSessionClosed
	default:
		return common.ErrQueueFull
	}
}

// Close tears the connection down. Safe to call from any goroutine, any
// number of times; the reader notices and runs cleanup.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Run serves the connection until the peer disconnects, a write fails or the
// session is closed. It always leaves the session deregistered and closed.
func (s *Session) Run(ctx context.Context) {
	s.logger.Info(ctx, "connection opened")

	go s.writeLoop(ctx, s.logger)
	defer s.cleanup(ctx)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "session panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	s.setState(StateAuthenticating)

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, common.ErrMalformedFrame) {
				s.logger.Debug(ctx, "ignoring oversized frame", "error", err)
				continue
			}
			if !isDisconnect(err) {
				s.logger.Warn(ctx, "read failed", "error", err)
			}
			return
		}
		s.handleFrame(ctx, frame)
	}
}

func (s *Session) handleFrame(ctx context.Context, frame []byte) {
	req, err := protocol.ParseRequest(frame)
	if err != nil {
		s.logger.Debug(ctx, "ignoring malformed frame", "error", err)
		return
	}

	switch s.State() {
	case StateAuthenticating:
		s.handleAuth(ctx, req)
	case StateRelaying:
		if req.Command != protocol.CommandMessage {
			s.logger.Debug(ctx, "ignoring command after login", "command", req.Command)
			return
		}
		s.srv.broadcaster.Relay(ctx, s, req.Content)
	}
}

func (s *Session) handleAuth(ctx context.Context, req *protocol.Request) {
	var (
		resp     protocol.Response
		username string
		err      error
	)

	switch req.Command {
	case protocol.CommandSignup:
		err = s.srv.auth.Create(ctx, req.Username, req.Password)
		resp, username = signupResponse(err), req.Username
	case protocol.CommandLogin:
		err = s.srv.auth.Verify(ctx, req.Username, req.Password)
		resp, username = loginResponse(err), req.Username
	case protocol.CommandResume:
		resp, username = s.resume(req.Token)
	case protocol.CommandMessage:
		resp = protocol.Response{Status: protocol.StatusFail, Message: msgNotLoggedIn}
	default:
		resp = protocol.Response{Status: protocol.StatusError, Message: msgUnknownCommand}
	}

	switch {
	case resp.Status == protocol.StatusSuccess:
		resp.Token = s.issueToken(ctx, username)
		s.username = username
		s.logger = s.logger.With("username", username)
		s.setState(StateAuthenticated)
	case err != nil && resp.Status == protocol.StatusError:
		s.logger.Error(ctx, "credential store failed", "command", req.Command, "error", err)
	default:
		s.logger.Info(ctx, "authentication rejected", "command", req.Command, "reason", resp.Message)
	}

	if err := s.reply(resp); err != nil {
		return
	}

	if resp.Status == protocol.StatusSuccess {
		s.join(ctx)
	}
}

func (s *Session) resume(token string) (protocol.Response, string) {
	if s.srv.tokens == nil {
		return protocol.Response{Status: protocol.StatusFail, Message: msgNoResume}, ""
	}
	username, err := s.srv.tokens.Resolve(token)
	if err != nil {
		return protocol.Response{Status: protocol.StatusFail, Message: msgBadToken}, ""
	}
	return protocol.Response{Status: protocol.StatusSuccess, Message: msgResumeOK}, username
}

func (s *Session) issueToken(ctx context.Context, username string) string {
	if s.srv.tokens == nil {
		return ""
	}
	token, err := s.srv.tokens.Issue(username)
	if err != nil {
		s.logger.Warn(ctx, "cannot issue session token", "error", err)
		return ""
	}
	return token
}

func (s *Session) join(ctx context.Context) {
	s.srv.registry.Register(s)
	s.joined = true
	s.setState(StateRelaying)
	s.logger.Info(ctx, "joined chat", "members", s.srv.registry.Len())
	s.srv.broadcaster.Announce(ctx, joinedText(s.username))
}

// reply queues an authentication response. Only the reader goroutine sends
// before the session is registered, so waiting for queue space is safe.
func (s *Session) reply(resp protocol.Response) error {
	frame, err := protocol.Marshal(resp)
	if err != nil {
		return err
	}
	select {
	case s.outbox <- frame:
		return nil
	case <-s.done:
		return common.ErrSessionClosed
	}
}

func (s *Session) writeLoop(ctx context.Context, logger logging.Logger) {
	defer close(s.writerDone)

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.outbox:
			var deadline time.Time
			if s.srv.writeTimeout > 0 {
				deadline = time.Now().Add(s.srv.writeTimeout)
			}
			if err := s.conn.WriteFrame(frame, deadline); err != nil {
				if !isDisconnect(err) {
					logger.Warn(ctx, "write failed, closing connection", "error", err)
				}
				s.Close()
				return
			}
		}
	}
}

func (s *Session) cleanup(ctx context.Context) {
	s.srv.registry.Deregister(s)
	if s.joined {
		s.srv.broadcaster.Announce(ctx, leftText(s.username))
	}
	s.setState(StateClosed)
	s.Close()
	<-s.writerDone
	s.logger.Info(ctx, "connection closed")
}

func signupResponse(err error) protocol.Response {
	switch {
	case err == nil:
		return protocol.Response{Status: protocol.StatusSuccess, Message: msgSignupOK}
	case errors.Is(err, common.ErrDuplicateUsername):
		return protocol.Response{Status: protocol.StatusFail, Message: msgUsernameTaken}
	case errors.Is(err, common.ErrReservedUsername):
		return protocol.Response{Status: protocol.StatusFail, Message: msgReservedName}
	case errors.Is(err, common.ErrInvalidCredentials):
		return protocol.Response{Status: protocol.StatusFail, Message: msgEmptyFields}
	default:
		return protocol.Response{Status: protocol.StatusError, Message: msgInternal}
	}
}

func loginResponse(err error) protocol.Response {
	switch {
	case err == nil:
		return protocol.Response{Status: protocol.StatusSuccess, Message: msgLoginOK}
	case errors.Is(err, common.ErrWrongPassword):
		return protocol.Response{Status: protocol.StatusFail, Message: msgWrongPassword}
	case errors.Is(err, common.ErrorNotFound):
		return protocol.Response{Status: protocol.StatusFail, Message: msgUserNotFound}
	case errors.Is(err, common.ErrInvalidCredentials):
		return protocol.Response{Status: protocol.StatusFail, Message: msgEmptyFields}
	default:
		return protocol.Response{Status: protocol.StatusError, Message: msgInternal}
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
