package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/testgrid-gateway/internal/config"
	"github.com/tomasbasham/testgrid-gateway/internal/report"
)

// ErrReportMissing is returned by `report --check` when no report exists.
var ErrReportMissing = errors.New("report not found")

type ReportOptions struct {
	root *TestGridOptions

	ProductName string
	GroupBy     string
	ShowSuccess bool
	Check       bool
	OutPath     string
	Config      config.Config

	iooption.IOStreams
}

var (
	reportLong = templates.LongDesc(`
		Download or probe a product's HTML test report.

		The report key is artifacts/<product>/<product>-<AXIS>.html, where
		AXIS is one of SCENARIO, INFRASTRUCTURE or DEPLOYMENT.`)

	reportExample = templates.Examples(`
		# Write the scenario report for a product to stdout
		testgrid report wso2is --database testgrid.db

		# Save the deployment report to a file
		testgrid report wso2is --group-by deployment --out wso2is.html

		# Check that a report exists without downloading it
		testgrid report wso2is --check`)
)

func NewReportOptions(root *TestGridOptions) *ReportOptions {
	return &ReportOptions{
		root:      root,
		Config:    config.Default(),
		IOStreams: root.IOStreams,
	}
}

func NewReportCommand(o *ReportOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "report [PRODUCT]",
		DisableFlagsInUseLine: true,
		Short:                 "Download a product's test report",
		Long:                  reportLong,
		Example:               reportExample,
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
	flags.StringVarP(&o.GroupBy, "group-by", "g", string(report.DefaultAxis), "Grouping axis: scenario, infrastructure or deployment")
	flags.BoolVar(&o.ShowSuccess, "show-success", false, "Include successful results (accepted for compatibility)")
	flags.BoolVar(&o.Check, "check", false, "Only check that the report exists")
	flags.StringVarP(&o.OutPath, "out", "o", "", "Output file (default: stdout)")
	addArtifactFlags(flags, &o.Config)
	addPropertiesFlag(flags, &o.Config)

	return cmd
}

func (o *ReportOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("product name is required")
	}
	o.ProductName = args[0]
	return nil
}

func (o *ReportOptions) Validate() error {
	if _, err := report.ParseAxis(o.GroupBy); err != nil {
		return err
	}
	if o.Check && o.OutPath != "" {
		return fmt.Errorf("--check and --out are mutually exclusive")
	}
	return o.Config.Validate()
}

func (o *ReportOptions) Run(ctx context.Context) error {
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

	gateway := report.NewGateway(repo, opener, logger)
	req := report.Request{
		ProductName: o.ProductName,
		GroupBy:     o.GroupBy,
		ShowSuccess: o.ShowSuccess,
	}

	if o.Check {
		ok, err := gateway.CheckExists(ctx, req)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrReportMissing, o.ProductName)
		}
		fmt.Fprintf(o.Out, "Report for %s exists\n", o.ProductName)
		return nil
	}

	rep, err := gateway.Fetch(ctx, req)
	if err != nil {
		return err
	}
	defer rep.Body.Close()

	if o.OutPath == "" {
		if _, err := io.Copy(o.Out, rep.Body); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	n, err := writeReportFile(o.OutPath, rep.Body)
	if err != nil {
		return err
	}
	fmt.Fprintf(o.ErrOut, "Wrote %s (%d bytes) to %s\n", rep.Filename, n, o.OutPath)
	return nil
}

// createFile opens the --out destination.
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// writeReportFile copies r into a new file at path. A failed close is
// returned like a failed write.
func writeReportFile(path string, r io.Reader) (int64, error) {
	f, err := createFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("failed to close output file: %w", err)
	}
	return n, nil
}
