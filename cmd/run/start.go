package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"wgobfs/internal/conf"
	"wgobfs/internal/flog"
	"wgobfs/internal/proxy"
)

func start(cfg *conf.Conf) {
	flog.Infof("Starting %s relay...", cfg.Role)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		flog.Infof("Shutdown signal received, initiating graceful shutdown...")
		cancel()
	}()

	p, err := proxy.New(cfg)
	if err != nil {
		flog.Fatalf("Failed to initialize relay: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		flog.Fatalf("Relay encountered an error: %v", err)
	}
	flog.Infof("Relay shutdown completed")
}
