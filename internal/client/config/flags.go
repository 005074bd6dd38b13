package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// parseFlags populates Config fields from -a and -t, ignoring every other
// argument.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ServerEndpointAddr, "a", config.ServerEndpointAddr, "address and port of the chat server")
	dialTimeout := fs.Int("t", int(config.DialTimeout.Seconds()), "connect timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.DialTimeout = time.Duration(*dialTimeout) * time.Second
		}
	})
	return nil
}
