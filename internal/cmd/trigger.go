package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/testgrid-gateway/internal/config"
	"github.com/tomasbasham/testgrid-gateway/internal/trigger"
)

type TriggerOptions struct {
	root *TestGridOptions

	JobName string
	Config  config.Config

	iooption.IOStreams
}

var (
	triggerLong = templates.LongDesc(`
		Trigger a Jenkins job by name.

		The job is started through the Jenkins remote build API using
		JENKINS_HOST, JENKINS_USER, JENKINS_TOKEN and JENKINS_BUILD_TOKEN.
		The request is sent exactly once and never retried.`)

	triggerExample = templates.Examples(`
		# Trigger a job using credentials from the environment
		testgrid trigger wso2is-5.4.0

		# Trigger against a Jenkins with a self-signed certificate
		testgrid trigger wso2is-5.4.0 --trust-policy insecure-accept-all`)
)

func NewTriggerOptions(root *TestGridOptions) *TriggerOptions {
	return &TriggerOptions{
		root:      root,
		Config:    config.Default(),
		IOStreams: root.IOStreams,
	}
}

func NewTriggerCommand(o *TriggerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "trigger [JOB]",
		DisableFlagsInUseLine: true,
		Short:                 "Trigger a Jenkins build",
		Long:                  triggerLong,
		Example:               triggerExample,
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

	addTriggerFlags(cmd.Flags(), &o.Config)
	addPropertiesFlag(cmd.Flags(), &o.Config)

	return cmd
}

func (o *TriggerOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("job name is required")
	}
	o.JobName = args[0]
	return nil
}

func (o *TriggerOptions) Validate() error {
	if err := trigger.ValidateJobName(o.JobName); err != nil {
		return err
	}
	if _, err := trigger.ParseTrustPolicy(o.Config.TrustPolicy); err != nil {
		return err
	}
	return nil
}

func (o *TriggerOptions) Run(ctx context.Context) error {
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
	builds, err := newBuildTrigger(o.Config, props, logger)
	if err != nil {
		return err
	}

	out := builds.TriggerBuild(ctx, o.JobName)
	switch out.Kind {
	case trigger.Triggered:
		fmt.Fprintf(o.Out, "Triggered %s\n", o.JobName)
		return nil
	case trigger.Rejected:
		return fmt.Errorf("jenkins rejected %s with status %d", o.JobName, out.Code)
	default:
		return fmt.Errorf("failed to trigger %s: %w", o.JobName, out.Err)
	}
}
