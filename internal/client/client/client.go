package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/protocol"
)

// ChatClient talks the newline-delimited JSON protocol over one connection.
type ChatClient struct {
	conn net.Conn
	r    *protocol.Reader

	wmu   sync.Mutex
	token string
}

// Dial connects to addr. Connection failures are reported as ErrUnavailable.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*ChatClient, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewChatClient(conn), nil
}

func NewChatClient(conn net.Conn) *ChatClient {
	return &ChatClient{conn: conn, r: protocol.NewReader(conn, 0)}
}

func (c *ChatClient) Login(ctx context.Context, username, password string) (*protocol.Response, error) {
	return c.authenticate(ctx, protocol.Request{Command: protocol.CommandLogin, Username: username, Password: password})
}

func (c *ChatClient) Signup(ctx context.Context, username, password string) (*protocol.Response, error) {
	return c.authenticate(ctx, protocol.Request{Command: protocol.CommandSignup, Username: username, Password: password})
}

// Resume authenticates with a token from an earlier successful login.
func (c *ChatClient) Resume(ctx context.Context, token string) (*protocol.Response, error) {
	return c.authenticate(ctx, protocol.Request{Command: protocol.CommandResume, Token: token})
}

// Token returns the session token from the last successful authentication,
// or "" if the server did not issue one.
func (c *ChatClient) Token() string {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.token
}

func (c *ChatClient) authenticate(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	if err := c.write(ctx, req); err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}

	frame, err := c.r.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp, err := protocol.ParseResponse(frame)
	if err != nil || resp.Status == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedFrame, frame)
	}

	if resp.Status == protocol.StatusSuccess && resp.Token != "" {
		c.wmu.Lock()
		c.token = resp.Token
		c.wmu.Unlock()
	}
	return resp, nil
}

// Send publishes a chat line.
func (c *ChatClient) Send(ctx context.Context, content string) error {
	return c.write(ctx, protocol.Request{Command: protocol.CommandMessage, Content: content})
}

// Receive blocks until the next event arrives. Frames that are not events
// yield ErrUnexpectedFrame and can be skipped; io.EOF means the server
// closed the connection.
func (c *ChatClient) Receive() (*protocol.Event, error) {
	frame, err := c.r.ReadFrame()
	if err != nil {
		return nil, err
	}
	ev, err := protocol.ParseEvent(frame)
	if err != nil || ev.Sender == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedFrame, frame)
	}
	return ev, nil
}

func (c *ChatClient) Close() error {
	return c.conn.Close()
}

func (c *ChatClient) write(ctx context.Context, req protocol.Request) error {
	frame, err := protocol.Marshal(req)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("send %s: %w", req.Command, err)
	}
	return nil
}
