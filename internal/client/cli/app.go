package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/gophchat/internal/client/client"
	"github.com/dmitrijs2005/gophchat/internal/client/config"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/protocol"
)

// chatClient is the part of client.ChatClient the UI needs; tests swap in a
// scripted stub.
type chatClient interface {
	Login(ctx context.Context, username, password string) (*protocol.Response, error)
	Signup(ctx context.Context, username, password string) (*protocol.Response, error)
	Send(ctx context.Context, content string) error
	Receive() (*protocol.Event, error)
	Close() error
}

var ErrServerClosed = errors.New("server closed connection")

type App struct {
	config *config.Config
	reader *bufio.Reader
	dial   func(ctx context.Context) (chatClient, error)

	// set once the user leaves, so the receiver stays quiet about the
	// connection closing under it
	quitting atomic.Bool

	outMu sync.Mutex
	out   io.Writer
}

func NewApp(c *config.Config) *App {
	return newApp(c, os.Stdin, os.Stdout, func(ctx context.Context) (chatClient, error) {
		cc, err := client.Dial(ctx, c.ServerEndpointAddr, c.DialTimeout)
		if err != nil {
			return nil, err
		}
		return cc, nil
	})
}

func newApp(c *config.Config, in io.Reader, out io.Writer, dial func(ctx context.Context) (chatClient, error)) *App {
	return &App{config: c, reader: bufio.NewReader(in), out: out, dial: dial}
}

// Run connects, authenticates and chats until the user quits, stdin ends,
// ctx is cancelled or the server goes away.
func (a *App) Run(ctx context.Context) error {
	cc, err := a.dial(ctx)
	if err != nil {
		a.println("Could not connect to server. Is it running?")
		return err
	}
	defer cc.Close()

	username, err := a.authenticate(ctx, cc)
	if err != nil {
		return err
	}

	a.println(fmt.Sprintf("--- Joined Public Chat as %s ---", username))
	a.println("Type your message and press Enter to send.")

	return a.chat(ctx, cc)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) print(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprint(a.out, args...)
}

// authenticate runs the login / signup menu until the server accepts.
func (a *App) authenticate(ctx context.Context, cc chatClient) (string, error) {
	for {
		a.println("\n--- Welcome to GophChat ---")
		a.println("1. Login")
		a.println("2. Signup")

		choice, err := GetSimpleText(a.reader, "Select an option (1/2): ", a.out)
		if err != nil {
			return "", err
		}
		if choice != "1" && choice != "2" {
			a.println("Invalid choice.")
			continue
		}

		username, err := GetSimpleText(a.reader, "Enter Username: ", a.out)
		if err != nil {
			return "", err
		}
		password, err := GetPassword(a.reader, a.out)
		if err != nil {
			return "", err
		}

		var resp *protocol.Response
		if choice == "1" {
			resp, err = cc.Login(ctx, username, string(password))
		} else {
			resp, err = cc.Signup(ctx, username, string(password))
		}
		common.WipeByteArray(password)

		if err != nil {
			a.println("Server closed connection.")
			return "", fmt.Errorf("%w: %v", ErrServerClosed, err)
		}

		if resp.Status == protocol.StatusSuccess {
			a.println("\n[+] " + resp.Message)
			return username, nil
		}
		a.println("\n[-] Error: " + resp.Message)
	}
}
