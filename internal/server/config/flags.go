package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

var serverFlags = []string{"-a", "-d", "-s", "-t", "-w", "-q", "-m", "-x", "-ws", "-hc", "-l"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   chat listener address (e.g., "127.0.0.1:55556")
//	-d string   database DSN (SQLite path or postgres:// URL)
//	-s string   session token HMAC secret
//	-t int      session token validity, minutes (0 disables resume)
//	-w int      write timeout, seconds
//	-q int      per-connection outbox size
//	-m int      max inbound frame size, bytes
//	-x          exclude the sender from its own chat lines
//	-ws string  websocket gateway address
//	-hc string  gRPC health endpoint address
//	-l string   log level
//
// Arguments not listed above (such as -c) are filtered out first.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "session token validity (in minutes)")
	writeTimeout := fs.Int("w", int(config.WriteTimeout.Seconds()), "write timeout (in seconds)")

	fs.IntVar(&config.OutboxSize, "q", config.OutboxSize, "per-connection outbox size")
	fs.IntVar(&config.MaxFrameSize, "m", config.MaxFrameSize, "max inbound frame size (bytes)")
	fs.BoolVar(&config.ExcludeSender, "x", config.ExcludeSender, "do not echo messages back to their sender")
	fs.StringVar(&config.WebSocketAddr, "ws", config.WebSocketAddr, "websocket gateway address")
	fs.StringVar(&config.HealthAddr, "hc", config.HealthAddr, "gRPC health endpoint address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	// whole-unit flags only replace durations when given explicitly, so a
	// "1500ms" from the JSON file is not truncated
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
		case "w":
			config.WriteTimeout = time.Duration(*writeTimeout) * time.Second
		}
	})
	return nil
}
