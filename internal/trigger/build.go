package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Property names holding the Jenkins credentials.
const (
	PropertyUser       = "JENKINS_USER"
	PropertyToken      = "JENKINS_TOKEN"
	PropertyHost       = "JENKINS_HOST"
	PropertyBuildToken = "JENKINS_BUILD_TOKEN"
)

// ErrInvalidJobName is returned for job names outside the allowed pattern.
var ErrInvalidJobName = errors.New("trigger: invalid job name")

// validJobName matches alphanumerics, dot, hyphen and underscore.
var validJobName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateJobName rejects names that could alter the trigger URL path.
func ValidateJobName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidJobName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidJobName, name)
	}
	if !validJobName.MatchString(name) {
		return fmt.Errorf("%w: %q contains characters outside [A-Za-z0-9._-]", ErrInvalidJobName, name)
	}
	return nil
}

// Kind is the class of a trigger outcome.
type Kind int

const (
	// Triggered means Jenkins answered 201 Created and queued the job.
	Triggered Kind = iota

	// Rejected means Jenkins answered with any other status code.
	Rejected

	// Failed means no answer was obtained, or the request was never sent.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Triggered:
		return "triggered"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the result of a single trigger attempt.
type Outcome struct {
	Kind Kind

	// Code is the HTTP status returned by Jenkins. Zero for Failed.
	Code int

	// Err is the cause for Failed outcomes.
	Err error
}

// Credentials authenticate against Jenkins and select the build token.
type Credentials struct {
	User     string
	Token    string
	JobToken string
	Host     string
}

// PropertySource looks up a named configuration value.
type PropertySource interface {
	Property(name string) string
}

// Doer performs a trigger request and returns the response status code.
type Doer interface {
	Trigger(ctx context.Context, target, user, token string) (int, error)
}

// BuildTrigger starts Jenkins jobs by name.
type BuildTrigger struct {
	props  PropertySource
	client Doer
	logger *slog.Logger
}

// NewBuildTrigger creates a BuildTrigger. Credentials are read from props on
// every call. A nil logger discards output.
func NewBuildTrigger(props PropertySource, client Doer, logger *slog.Logger) *BuildTrigger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BuildTrigger{props: props, client: client, logger: logger}
}

// Credentials reads the current credentials. Missing values are returned
// empty; Jenkins rejects them rather than this package.
func (b *BuildTrigger) Credentials() Credentials {
	return Credentials{
		User:     b.props.Property(PropertyUser),
		Token:    b.props.Property(PropertyToken),
		JobToken: b.props.Property(PropertyBuildToken),
		Host:     b.props.Property(PropertyHost),
	}
}

// BuildURL composes the remote build URL for jobName.
func BuildURL(host, jobName, jobToken string) string {
	return strings.TrimSuffix(host, "/") + "/job/" + url.PathEscape(jobName) + "/build?token=" + url.QueryEscape(jobToken)
}

// TriggerBuild asks Jenkins to start jobName. Every call sends a new request;
// calls are neither retried nor deduplicated.
func (b *BuildTrigger) TriggerBuild(ctx context.Context, jobName string) Outcome {
	if err := ValidateJobName(jobName); err != nil {
		b.logger.Warn("refusing to trigger build", "job", jobName, "error", err)
		return Outcome{Kind: Failed, Err: err}
	}

	creds := b.Credentials()
	target := BuildURL(creds.Host, jobName, creds.JobToken)
	b.logger.Info("triggering build", "job", jobName, "host", creds.Host)

	code, err := b.client.Trigger(ctx, target, creds.User, creds.Token)
	if err != nil {
		b.logger.Error("build trigger request failed", "job", jobName, "error", err)
		return Outcome{Kind: Failed, Err: err}
	}
	if code != http.StatusCreated {
		b.logger.Error("build trigger rejected", "job", jobName, "status", code)
		return Outcome{Kind: Rejected, Code: code}
	}

	b.logger.Info("build triggered", "job", jobName)
	return Outcome{Kind: Triggered, Code: code}
}
