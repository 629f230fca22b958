package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName     string
	HTTPAddr        string
	TCPAddr         string
	DatabaseURL     string
	TickInterval    time.Duration
	MaxCatchUpTicks int
	MaxHistoryTicks int
	ActionWorkers   int
	ShutdownGrace   time.Duration
	MaxFrameBytes   int
	LogLevel        string
	LogFormat       string
}

func Default() Config {
	return Config{
		ServiceName:     "yipee",
		HTTPAddr:        ":8080",
		TCPAddr:         ":8090",
		TickInterval:    16 * time.Millisecond,
		MaxCatchUpTicks: 5,
		MaxHistoryTicks: 120,
		ActionWorkers:   4,
		ShutdownGrace:   5 * time.Second,
		MaxFrameBytes:   64 << 10,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// LoadDotEnv reads files (default ".env") into the environment when they
// exist. Variables already set win over the files.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv builds a Config from lookup, falling back to Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s: want a positive integer, got %q", key, v))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: want a positive duration, got %q", key, v))
			return
		}
		*dst = d
	}

	str("SERVICE_NAME", &c.ServiceName)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("TCP_ADDR", &c.TCPAddr)
	str("DATABASE_URL", &c.DatabaseURL)
	dur("TICK_INTERVAL", &c.TickInterval)
	num("MAX_CATCHUP_TICKS", &c.MaxCatchUpTicks)
	num("MAX_HISTORY_TICKS", &c.MaxHistoryTicks)
	num("ACTION_WORKERS", &c.ActionWorkers)
	dur("SHUTDOWN_GRACE", &c.ShutdownGrace)
	num("MAX_FRAME_BYTES", &c.MaxFrameBytes)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	return c, errors.Join(errs...)
}
