package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/tomasbasham/testgrid-gateway/internal/config"
	"github.com/tomasbasham/testgrid-gateway/internal/product"
	"github.com/tomasbasham/testgrid-gateway/internal/storage"
	"github.com/tomasbasham/testgrid-gateway/internal/trigger"
)

// addPropertiesFlag binds the properties file flag shared by every command.
func addPropertiesFlag(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.PropertiesFile, "properties-file", cfg.PropertiesFile, "YAML file of properties consulted before the environment")
}

// addArtifactFlags binds the artefact store and product database flags.
func addArtifactFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.ArtifactBackend, "artifact-backend", cfg.ArtifactBackend, "Artefact store backend: s3, gcs or local")
	fs.StringVar(&cfg.ArtifactEndpoint, "artifact-endpoint", cfg.ArtifactEndpoint, "Custom S3 endpoint, e.g. MinIO or LocalStack")
	fs.StringVar(&cfg.ArtifactDir, "artifact-dir", cfg.ArtifactDir, "Root directory for the local backend")
	fs.StringVar(&cfg.DatabasePath, "database", cfg.DatabasePath, "SQLite database holding products (default: empty in-memory repository)")
}

// addTriggerFlags binds the Jenkins trigger flags.
func addTriggerFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.TrustPolicy, "trust-policy", cfg.TrustPolicy, "Certificate trust policy for Jenkins: system or insecure-accept-all")
	fs.StringVar(&cfg.CAFile, "ca-file", cfg.CAFile, "PEM bundle of additional trusted roots for Jenkins")
	fs.DurationVar(&cfg.TriggerTimeout, "trigger-timeout", cfg.TriggerTimeout, "Timeout for a single build trigger request")
}

// openRepository opens the SQLite product database at path, or an empty
// in-memory repository when path is empty.
func openRepository(path string) (product.Repository, func() error, error) {
	if path == "" {
		return product.NewMemoryRepository(), func() error { return nil }, nil
	}
	repo, err := product.NewSQLiteRepository(path)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// newOpener builds the artefact store opener for cfg.
func newOpener(ctx context.Context, cfg config.Config, props config.Source) (storage.Opener, func() error, error) {
	return storage.NewOpener(ctx, storage.OpenerOptions{
		Backend:  cfg.ArtifactBackend,
		Endpoint: cfg.ArtifactEndpoint,
		Dir:      cfg.ArtifactDir,
	}, props)
}

// newBuildTrigger builds the Jenkins trigger for cfg.
func newBuildTrigger(cfg config.Config, props config.Source, logger *slog.Logger) (*trigger.BuildTrigger, error) {
	policy, err := trigger.ParseTrustPolicy(cfg.TrustPolicy)
	if err != nil {
		return nil, err
	}
	client, err := trigger.NewClient(trigger.ClientOptions{
		TrustPolicy: policy,
		CAFile:      cfg.CAFile,
		Timeout:     cfg.TriggerTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise build trigger client: %w", err)
	}
	return trigger.NewBuildTrigger(props, client, logger), nil
}
