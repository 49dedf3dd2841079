package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Output destinations for the mixdown.
const (
	OutputSpeakers = "speakers"
	OutputStream   = "stream"
	OutputBoth     = "both"
	OutputNone     = "none"
)

// Session store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port          int
	ShutdownGrace time.Duration

	// Library
	SoundsDir     string
	UserSoundsDir string

	// Engine
	TickInterval time.Duration
	Seed         uint64 // 0 picks a random seed
	Output       string // speakers, stream, both, none

	// Sessions
	SessionDriver string // file, sqlite, postgres, s3
	SessionsDir   string
	SQLitePath    string
	PostgresDSN   string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3PathStyle   bool

	// Control surface; empty disables it
	MIDIPort string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:          envInt("AMBIMIX_PORT", 8080),
		ShutdownGrace: time.Duration(envFloat("AMBIMIX_SHUTDOWN_GRACE", 5) * float64(time.Second)),

		SoundsDir:     envStr("AMBIMIX_SOUNDS_DIR", "sounds"),
		UserSoundsDir: envStr("AMBIMIX_USER_SOUNDS_DIR", "user_sounds"),

		TickInterval: time.Duration(envInt("AMBIMIX_TICK_MS", 100)) * time.Millisecond,
		Seed:         uint64(envInt("AMBIMIX_SEED", 0)),
		Output:       strings.ToLower(envStr("AMBIMIX_OUTPUT", OutputBoth)),

		SessionDriver: strings.ToLower(envStr("AMBIMIX_SESSION_DRIVER", DriverFile)),
		SessionsDir:   envStr("AMBIMIX_SESSIONS_DIR", "sessions"),
		SQLitePath:    envStr("AMBIMIX_SQLITE_PATH", "sessions/ambimix.db"),
		PostgresDSN:   envStr("AMBIMIX_POSTGRES_DSN", ""),
		S3Bucket:      envStr("AMBIMIX_S3_BUCKET", ""),
		S3Region:      envStr("AMBIMIX_S3_REGION", "us-east-1"),
		S3Endpoint:    envStr("AMBIMIX_S3_ENDPOINT", ""),
		S3PathStyle:   envBool("AMBIMIX_S3_PATH_STYLE", false),

		MIDIPort: envStr("AMBIMIX_MIDI_PORT", ""),
	}
}

// Validate rejects unknown enum values and settings a driver needs.
func (c Config) Validate() error {
	switch c.Output {
	case OutputSpeakers, OutputStream, OutputBoth, OutputNone:
	default:
		return fmt.Errorf("unknown output %q", c.Output)
	}
	switch c.SessionDriver {
	case DriverFile, DriverSQLite:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("AMBIMIX_POSTGRES_DSN required for postgres sessions")
		}
	case DriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("AMBIMIX_S3_BUCKET required for s3 sessions")
		}
	default:
		return fmt.Errorf("unknown session driver %q", c.SessionDriver)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	return nil
}

// Speakers reports whether the mix plays on local speakers.
func (c Config) Speakers() bool { return c.Output == OutputSpeakers || c.Output == OutputBoth }

// Stream reports whether the mix is served to remote listeners.
func (c Config) Stream() bool { return c.Output == OutputStream || c.Output == OutputBoth }

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
