// Package config provides the process configuration for the gateway. Settings
// that shape how the process runs are collected once into a Config value at
// start-up; named properties such as credentials and bucket names are read
// through a Source on every use. The environment is consulted per lookup and
// the properties file is re-read when it changes on disk, so rotated values
// apply without a restart.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tomasbasham/testgrid-gateway/internal/storage"
	"github.com/tomasbasham/testgrid-gateway/internal/trigger"
)

// Config holds settings that are fixed for the lifetime of the process.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// ArtifactBackend selects the object store: s3, gcs or local.
	ArtifactBackend string

	// ArtifactEndpoint overrides the S3 endpoint (MinIO, LocalStack).
	ArtifactEndpoint string

	// ArtifactDir is the root directory for the local backend.
	ArtifactDir string

	// TrustPolicy names the certificate verification policy for build
	// triggers: "system" or "insecure-accept-all".
	TrustPolicy string

	// CAFile optionally adds a PEM bundle of trusted roots for triggers.
	CAFile string

	// TriggerTimeout bounds a single build trigger request.
	TriggerTimeout time.Duration

	// DatabasePath is the SQLite file holding products. Empty selects an
	// empty in-memory repository.
	DatabasePath string

	// PropertiesFile is an optional YAML file of properties consulted before
	// the environment.
	PropertiesFile string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	LogLevel  string
	LogFormat string
}

// Default returns a Config populated with the default values.
func Default() Config {
	return Config{
		Port:            8080,
		ArtifactBackend: storage.BackendS3,
		TrustPolicy:     "system",
		TriggerTimeout:  30 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     60 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Validate checks the settings that cannot be deferred until first use.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	switch c.ArtifactBackend {
	case storage.BackendS3, storage.BackendGCS:
	case storage.BackendLocal:
		if c.ArtifactDir == "" {
			return fmt.Errorf("config: artifact directory is required for the local backend")
		}
	default:
		return fmt.Errorf("config: unknown artifact backend %q (valid: s3, gcs, local)", c.ArtifactBackend)
	}
	if _, err := trigger.ParseTrustPolicy(c.TrustPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.TriggerTimeout < 0 {
		return fmt.Errorf("config: trigger timeout must not be negative")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return fmt.Errorf("config: unknown log level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}
