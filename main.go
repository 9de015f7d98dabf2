// Command nfc-watch-agent watches an NFC reader and forwards every record
// it reads to web pages over WebSocket and to other processes over NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nedpals/nfc-watch-agent/buildinfo"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if errors.Is(err, errVersion) {
		fmt.Println(buildinfo.String())
		return
	}
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	agent := NewAgent(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run in CLI mode only if explicitly requested
	if cfg.CLI {
		if err := agent.Start(ctx); err != nil {
			log.Fatalf("Failed to start agent: %v", err)
		}
		<-ctx.Done()
		log.Println("Shutdown signal received, stopping agent...")
		agent.Stop()
		return
	}

	NewSystrayApp(agent).Run(ctx)
}
