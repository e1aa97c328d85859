package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/pavel-fokin/filexfer/internal/worker"
)

type Config struct {
	Host            string        `env:"FILEXFER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"FILEXFER_PORT" envDefault:"60001"`
	DataDir         string        `env:"FILEXFER_DATA_DIR" envDefault:"progjarETS"`
	MaxWorkers      int           `env:"FILEXFER_MAX_WORKERS" envDefault:"10"`
	Mode            worker.Mode   `env:"FILEXFER_MODE" envDefault:"shared"`
	IdleTimeout     time.Duration `env:"FILEXFER_IDLE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"FILEXFER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	DBPath          string        `env:"FILEXFER_DB_PATH"`
	StatusAddr      string        `env:"FILEXFER_STATUS_ADDR"`
	LogLevel        slog.Level    `env:"FILEXFER_LOG_LEVEL" envDefault:"info"`
}

// Addr returns the TCP address the server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is required"))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max workers must be positive, got %d", c.MaxWorkers))
	}
	if _, err := worker.ParseMode(string(c.Mode)); err != nil {
		errs = append(errs, err)
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("idle timeout must be positive, got %s", c.IdleTimeout))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must not be negative, got %s", c.ShutdownTimeout))
	}
	return errors.Join(errs...)
}
