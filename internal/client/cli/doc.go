// Package cli provides the interactive chat client.
//
// The client connects, then loops on a login / signup menu until the server
// accepts the credentials. After that a background goroutine prints every
// event as "[sender]: content" while the foreground reads lines from the
// user and sends each as a chat message. Typing "exit" or closing stdin
// ends the session.
package cli
