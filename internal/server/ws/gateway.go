// Package ws exposes the chat over WebSocket. Every text message carries one
// protocol frame, without the trailing newline, and is handed to the same
// session machinery the TCP listener uses.
package ws

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/chat"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 5 * time.Second

// ConnServer runs a chat session over an established connection.
type ConnServer interface {
	ServeConn(ctx context.Context, conn chat.Conn)
}

type Gateway struct {
	address      string
	chat         ConnServer
	logger       logging.Logger
	maxFrameSize int
	upgrader     websocket.Upgrader
}

func NewGateway(address string, cs ConnServer, maxFrameSize int, l logging.Logger) *Gateway {
	return &Gateway{
		address:      address,
		chat:         cs,
		logger:       l.With("module", "ws_gateway"),
		maxFrameSize: maxFrameSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (g *Gateway) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Warn(ctx, "websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		if g.maxFrameSize > 0 {
			c.SetReadLimit(int64(g.maxFrameSize))
		}
		g.chat.ServeConn(ctx, &wsConn{c: c})
	})
	return mux
}

func (g *Gateway) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", g.address)
	if err != nil {
		return err
	}
	return g.Serve(ctx, listen)
}

// Serve handles WebSocket upgrades on ln until ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           g.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		g.logger.Info(ctx, "Stopping websocket gateway...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			g.logger.Warn(ctx, "websocket gateway shutdown", "error", err)
		}
	}()

	g.logger.Info(ctx, "Starting websocket gateway", "address", ln.Addr().String())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// wsConn adapts a websocket connection to chat.Conn.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, io.EOF
		}
		return nil, err
	}
	return bytes.TrimRight(data, "\r\n"), nil
}

func (w *wsConn) WriteFrame(frame []byte, deadline time.Time) error {
	if err := w.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(frame, []byte("\n")))
}

func (w *wsConn) Close() error {
	return w.c.Close()
}

func (w *wsConn) RemoteAddr() string {
	return w.c.RemoteAddr().String()
}
