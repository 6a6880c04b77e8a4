package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/offmarket/offmarket/internal/app"
	"github.com/offmarket/offmarket/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "offmarket: %v\n", err)
		os.Exit(1)
	}
}

// run returns only after the alert service has drained, so the exit code
// never skips the in-flight evaluation run.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer svc.Shutdown()

	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("serve alerts api: %w", err)
	}
	return nil
}
