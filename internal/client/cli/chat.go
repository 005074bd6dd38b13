package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/client/client"
)

const prompt = "You: "

// chat runs the receive loop in the background and sends every line the user
// types until "exit", end of input, cancellation or disconnect.
func (a *App) chat(ctx context.Context, cc chatClient) error {
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		a.receive(cc)
	}()

	lines := make(chan string)
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		for {
			line, err := a.reader.ReadString('\n')
			if line != "" || err == nil {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-disconnected:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	var result error
loop:
	for {
		a.print(prompt)
		select {
		case <-ctx.Done():
			a.println("\nExiting...")
			break loop
		case <-disconnected:
			result = ErrServerClosed
			break loop
		case <-inputDone:
			break loop
		case line := <-lines:
			if strings.EqualFold(strings.TrimSpace(line), "exit") {
				break loop
			}
			if err := cc.Send(ctx, line); err != nil {
				a.println(fmt.Sprintf("\n[-] Error: %v", err))
				result = err
				break loop
			}
		}
	}

	a.quitting.Store(true)
	_ = cc.Close()
	<-disconnected
	return result
}

func (a *App) receive(cc chatClient) {
	for {
		ev, err := cc.Receive()
		if err != nil {
			if errors.Is(err, client.ErrUnexpectedFrame) {
				continue
			}
			if !a.quitting.Load() {
				a.println("\n[!] Disconnected from server.")
			}
			return
		}
		a.print(fmt.Sprintf("\r[%s]: %s\n%s", ev.Sender, ev.Content, prompt))
	}
}
