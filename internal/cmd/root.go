package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		Serve TestGrid product reports and trigger Jenkins builds.

		Reports are HTML artefacts stored in an object store under
		artifacts/<product>/<product>-<AXIS>.html. Credentials and bucket
		names are read from the environment, or from a YAML properties file,
		every time they are needed.`)

	rootExamples = templates.Examples(`
		# Start the HTTP gateway against S3
		testgrid serve --port 8080

		# Trigger a Jenkins job
		testgrid trigger wso2is-5.4.0

		# Download a report grouped by deployment
		testgrid report wso2is --group-by deployment --out report.html`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// TestGridOptions defines the options shared by every `testgrid` command.
type TestGridOptions struct {
	LogLevel  string
	LogFormat string

	iooption.IOStreams
}

// NewTestGridOptions provides an initialised TestGridOptions instance.
func NewTestGridOptions(streams iooption.IOStreams) *TestGridOptions {
	return &TestGridOptions{
		LogLevel:  "info",
		LogFormat: "text",
		IOStreams: streams,
	}
}

// Logger builds the process logger, writing to the error stream.
func (o *TestGridOptions) Logger() (*slog.Logger, error) {
	return newLogger(o.ErrOut, o.LogLevel, o.LogFormat)
}

// NewRootCommand creates the `testgrid` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewTestGridOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `testgrid` command and its nested
// children.
func NewRootCommandWithArgs(o *TestGridOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "testgrid [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "TestGrid report and build trigger gateway",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug, info, warn or error")
	pflags.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log format: text or json")

	cmd.AddCommand(NewServeCommand(NewServeOptions(o)))
	cmd.AddCommand(NewTriggerCommand(NewTriggerOptions(o)))
	cmd.AddCommand(NewReportCommand(NewReportOptions(o)))

	// The globlal normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
