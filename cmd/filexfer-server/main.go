package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/pavel-fokin/filexfer/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg := server.Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// Flags override the environment.
	flag.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	flag.IntVar(&cfg.MaxWorkers, "workers", cfg.MaxWorkers, "maximum number of concurrent connections")
	flag.TextVar(&cfg.Mode, "mode", cfg.Mode, "worker mode: shared (thread) or isolated (process)")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding stored files")
	flag.Parse()

	srv, err := server.New(&cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		srv.Close()
		log.Fatalf("server failed: %v", err)
	}
}
