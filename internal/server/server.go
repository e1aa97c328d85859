package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pavel-fokin/filexfer/internal/files"
	"github.com/pavel-fokin/filexfer/internal/fs"
	"github.com/pavel-fokin/filexfer/internal/sqlite"
	"github.com/pavel-fokin/filexfer/internal/worker"
)

// Server accepts TCP connections and runs one session per connection on a
// bounded worker pool.
type Server struct {
	cfg    *Config
	files  *files.Service
	repo   *sqlite.Repository
	pool   worker.Pool
	stats  *Stats
	logger *slog.Logger

	// conns tracks open connections so shutdown can force them closed.
	conns sync.Map
	// closing is set once shutdown starts closing connections.
	closing atomic.Bool
}

func New(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// Initialize storage and the optional transfer journal
	storage := fs.NewStorage(cfg.DataDir)
	var journal files.TransferJournal
	var repo *sqlite.Repository
	if cfg.DBPath != "" {
		var err error
		repo, err = sqlite.NewRepository(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize repository: %w", err)
		}
		journal = repo
	}

	// Validate has already rejected unknown modes; this folds the aliases.
	mode, _ := worker.ParseMode(string(cfg.Mode))
	pool, err := worker.New(mode, cfg.MaxWorkers, logger)
	if err != nil {
		if repo != nil {
			repo.Close()
		}
		return nil, fmt.Errorf("failed to initialize worker pool: %w", err)
	}

	return &Server{
		cfg:    cfg,
		files:  files.NewService(storage, journal),
		repo:   repo,
		pool:   pool,
		stats:  newStats(),
		logger: logger,
	}, nil
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then waits for
// in-flight sessions for up to ShutdownTimeout before closing them.
// A worker is reserved before each Accept, so connections beyond the
// worker bound wait in the listen backlog.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Server listening",
		"addr", ln.Addr().String(),
		"mode", s.pool.Mode(),
		"max_workers", s.cfg.MaxWorkers,
		"data_dir", s.cfg.DataDir,
	)

	status := s.startStatus()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	err := s.acceptLoop(ctx, ln)

	s.shutdown()
	if status != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := status.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to stop status server", "error", err)
		}
	}

	s.logger.Info("Server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration

	for {
		slot, err := s.pool.Reserve(ctx)
		if err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			slot.Release()
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Error("Accept failed", "error", err, "retry_in_ms", backoff.Milliseconds())
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		slot.Run(func() { s.handle(ctx, conn) })
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	s.conns.Store(id, conn)
	defer s.conns.Delete(id)

	// Jobs that start after the forced close never reach the conns sweep.
	if s.closing.Load() {
		conn.Close()
		return
	}

	s.stats.connOpened()
	defer s.stats.connClosed()

	sess := newSession(context.WithoutCancel(ctx), id, conn, s)
	sess.serve()
}

func (s *Server) shutdown() {
	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(s.cfg.ShutdownTimeout):
	}

	s.logger.Warn("Shutdown timeout reached, closing connections")
	s.closeConns()
	<-done
}

func (s *Server) closeConns() {
	s.closing.Store(true)
	s.conns.Range(func(key, value any) bool {
		value.(net.Conn).Close()
		return true
	})
}

// Close releases resources held outside of Serve.
func (s *Server) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Server) startStatus() *http.Server {
	if s.cfg.StatusAddr == "" {
		return nil
	}

	srv := &http.Server{
		Addr:         s.cfg.StatusAddr,
		Handler:      s.statusHandler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		s.logger.Info("Status server listening", "addr", s.cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed", "error", err)
		}
	}()
	return srv
}
