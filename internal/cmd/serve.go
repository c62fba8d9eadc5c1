package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/testgrid-gateway/internal/config"
	"github.com/tomasbasham/testgrid-gateway/internal/metrics"
	"github.com/tomasbasham/testgrid-gateway/internal/report"
	"github.com/tomasbasham/testgrid-gateway/internal/server"
)

type ServeOptions struct {
	root *TestGridOptions

	Config config.Config
}

var (
	serveLong = templates.LongDesc(`
		Start the TestGrid HTTP gateway.

		The gateway serves product status, report probes and downloads, and
		build triggers. Region, bucket and Jenkins credentials are read per
		request from the properties file or the environment.`)

	serveExample = templates.Examples(`
		# Start on the default port against S3
		testgrid serve

		# Serve reports from a local directory with a product database
		testgrid serve --artifact-backend local --artifact-dir ./reports --database testgrid.db

		# Use MinIO and trust a private CA for Jenkins
		testgrid serve --artifact-endpoint http://localhost:9000 --ca-file ca.pem`)
)

func NewServeOptions(root *TestGridOptions) *ServeOptions {
	return &ServeOptions{
		root:   root,
		Config: config.Default(),
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the TestGrid HTTP gateway",
		Long:    serveLong,
		Example: serveExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(cmd.Context()); err != nil {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&o.Config.Port, "port", "p", o.Config.Port, "Port to listen on")
	flags.DurationVar(&o.Config.ReadTimeout, "read-timeout", o.Config.ReadTimeout, "HTTP server read timeout")
	flags.DurationVar(&o.Config.WriteTimeout, "write-timeout", o.Config.WriteTimeout, "HTTP server write timeout, bounding report downloads")
	flags.DurationVar(&o.Config.IdleTimeout, "idle-timeout", o.Config.IdleTimeout, "HTTP server idle timeout")
	addArtifactFlags(flags, &o.Config)
	addTriggerFlags(flags, &o.Config)
	addPropertiesFlag(flags, &o.Config)

	return cmd
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	o.Config.LogLevel = o.root.LogLevel
	o.Config.LogFormat = o.root.LogFormat
	return nil
}

func (o *ServeOptions) Validate() error {
	return o.Config.Validate()
}

func (o *ServeOptions) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := o.root.Logger()
	if err != nil {
		return err
	}

	props, err := config.NewSource(o.Config)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(o.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open product repository: %w", err)
	}
	defer closeRepo()

	opener, closeStore, err := newOpener(ctx, o.Config, props)
	if err != nil {
		return fmt.Errorf("failed to initialise artefact store: %w", err)
	}
	defer closeStore()

	builds, err := newBuildTrigger(o.Config, props, logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Products: repo,
		Reports:  report.NewGateway(repo, opener, logger),
		Builds:   builds,
		Metrics:  metrics.New(),
		Logger:   logger,
	})

	addr := fmt.Sprintf(":%d", o.Config.Port)
	logger.Info("starting TestGrid gateway",
		"addr", addr,
		"artifact_backend", o.Config.ArtifactBackend,
		"trust_policy", o.Config.TrustPolicy,
	)
	return srv.ListenAndServe(ctx, addr, server.Timeouts{
		Read:  o.Config.ReadTimeout,
		Write: o.Config.WriteTimeout,
		Idle:  o.Config.IdleTimeout,
	})
}
