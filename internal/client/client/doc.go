// Package client is the transport side of the chat client: it dials the
// server, performs the login / signup / resume exchange and then sends chat
// lines and receives events.
//
// # Error Handling
//
// A rejected login is not an error: the server's Response is returned and
// its Status tells the caller what happened. Errors are reserved for
// transport failures and are matchable with errors.Is: ErrUnavailable,
// ErrUnexpectedFrame.
//
// # Concurrency
//
// One goroutine may call Receive while others call Send. Authentication
// calls must not overlap with Receive.
package client
