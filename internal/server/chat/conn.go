// Package chat implements the server side of the chat: the per-connection
// session state machine, the registry of authenticated sessions, the
// broadcaster that fans chat lines out to them, and the TCP acceptor.
package chat

import (
	"net"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/protocol"
)

// Conn is a framed connection to one peer. ReadFrame is only called from the
// session's reader goroutine and WriteFrame only from its writer goroutine.
type Conn interface {
	ReadFrame() ([]byte, error)
	// WriteFrame writes one newline-terminated frame. A zero deadline means
	// no deadline.
	WriteFrame(frame []byte, deadline time.Time) error
	Close() error
	RemoteAddr() string
}

// lineConn carries newline-delimited frames over a stream socket.
type lineConn struct {
	c net.Conn
	r *protocol.Reader
}

func NewLineConn(c net.Conn, maxFrameSize int) Conn {
	return &lineConn{c: c, r: protocol.NewReader(c, maxFrameSize)}
}

func (l *lineConn) ReadFrame() ([]byte, error) {
	return l.r.ReadFrame()
}

func (l *lineConn) WriteFrame(frame []byte, deadline time.Time) error {
	if err := l.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := l.c.Write(frame)
	return err
}

func (l *lineConn) Close() error {
	return l.c.Close()
}

func (l *lineConn) RemoteAddr() string {
	return l.c.RemoteAddr().String()
}
