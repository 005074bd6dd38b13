package chat

import (
	"context"
	"errors"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/protocol"
)

const (
	DefaultOutboxSize   = 256
	DefaultWriteTimeout = 10 * time.Second
)

// Server accepts chat connections and runs one Session per connection.
type Server struct {
	address      string
	registry     *Registry
	broadcaster  *Broadcaster
	auth         Authenticator
	tokens       TokenIssuer
	logger       logging.Logger
	writeTimeout time.Duration
	outboxSize   int
	maxFrameSize int

	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool
	wg       sync.WaitGroup
}

type Option func(*Server)

func WithTokenIssuer(t TokenIssuer) Option {
	return func(s *Server) { s.tokens = t }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithOutboxSize bounds the number of frames queued for one connection.
// Values below 1 keep the default.
func WithOutboxSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.outboxSize = n
		}
	}
}

func WithMaxFrameSize(n int) Option {
	return func(s *Server) { s.maxFrameSize = n }
}

func NewServer(address string, r *Registry, b *Broadcaster, a Authenticator, l logging.Logger, opts ...Option) *Server {
	s := &Server{
		address:      address,
		registry:     r,
		broadcaster:  b,
		auth:         a,
		logger:       l.With("module", "chat_server"),
		writeTimeout: DefaultWriteTimeout,
		outboxSize:   DefaultOutboxSize,
		maxFrameSize: protocol.DefaultMaxFrameSize,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run binds the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections from ln until ctx is cancelled. On shutdown it
// closes the listener and every live session, then waits for their
// goroutines to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping chat server...")
		case <-stop:
		}
		_ = ln.Close()
	}()

	s.logger.Info(ctx, "Starting chat server", "address", ln.Addr().String())

	var (
		serveErr  error
		tempDelay time.Duration
	)

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				serveErr = err
				break
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else if tempDelay *= 2; tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.logger.Warn(ctx, "accept failed, retrying", "error", err, "delay", tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		conn := NewLineConn(c, s.maxFrameSize)
		sess, ok := s.track(conn)
		if !ok {
			continue
		}
		go s.serveSession(ctx, sess)
	}

	s.shutdown()
	return serveErr
}

// ServeConn runs a session over an already established connection and
// blocks until it ends. Used by gateways that speak other transports.
func (s *Server) ServeConn(ctx context.Context, conn Conn) {
	sess, ok := s.track(conn)
	if !ok {
		return
	}
	s.serveSession(ctx, sess)
}

// Registry returns the set of authenticated sessions.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Connections reports how many connections are currently open, authenticated
// or not.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) track(conn Conn) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		_ = conn.Close()
		return nil, false
	}

	sess := newSession(s, conn)
	s.sessions[sess.ID()] = sess
	s.wg.Add(1)
	return sess, true
}

func (s *Server) serveSession(ctx context.Context, sess *Session) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.ID())
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "connection handler panicked", "panic", r, "stack", string(debug.Stack()))
			sess.Close()
		}
	}()

	sess.Run(ctx)
}

func (s *Server) shutdown() {
	s.mu.Lock()
	s.closing = true
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		sess.Close()
	}
	s.wg.Wait()
}
