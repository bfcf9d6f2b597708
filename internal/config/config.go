// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvPrefix namespaces every environment override, e.g. FILTERBATTLE_PORT.
const EnvPrefix = "FILTERBATTLE"

// Server configures cmd/server.
type Server struct {
	Bind               string
	Port               int
	SubmitTimeout      time.Duration
	IndependentFilters bool
	ContentPath        string
	Origins            []string
	RedisAddr          string
	RedisDB            int
	Queue              string
	Verbose            bool
	LogJSON            bool
	Version            bool
}

func (c *Server) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("invalid submit timeout (must be positive): %s", c.SubmitTimeout)
	}
	if c.Queue == "" {
		return errors.New("queue name must not be empty")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid redis db index: %d", c.RedisDB)
	}
	return nil
}

func (c *Server) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// RecordingEnabled reports whether scored rounds are pushed to Redis.
func (c *Server) RecordingEnabled() bool {
	return c.RedisAddr != ""
}

// Historian configures cmd/historian.
type Historian struct {
	RedisAddr     string
	RedisDB       int
	Queue         string
	DatabaseURL   string
	BatchSize     int
	FlushInterval time.Duration
	Verbose       bool
	LogJSON       bool
}

func (c *Historian) Validate() error {
	if c.RedisAddr == "" {
		return errors.New("--redis-addr is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("--database-url is required")
	}
	if c.Queue == "" {
		return errors.New("queue name must not be empty")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch size (must be at least 1): %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("invalid flush interval (must be positive): %s", c.FlushInterval)
	}
	return nil
}

// NewLogger builds the process logger: Debug when verbose, JSON output when asked.
func NewLogger(verbose, json bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if json {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
