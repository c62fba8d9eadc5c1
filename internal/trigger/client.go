// Package trigger starts jobs on a remote Jenkins server. The client performs
// a single authenticated GET against the job's build URL and reports the
// response code; BuildTrigger turns that code into an Outcome.
package trigger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 30 * time.Second

// ErrInsecureScheme is returned for trigger URLs that are not https. The
// credentials and build token must never travel in cleartext.
var ErrInsecureScheme = errors.New("trigger URL must use https")

// TransportError reports that the request never produced an HTTP response:
// DNS, connect, TLS handshake or timeout failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("trigger: request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ClientOptions configures a Client.
type ClientOptions struct {
	TrustPolicy TrustPolicy

	// CAFile is an optional PEM bundle added to the system roots. Ignored
	// under TrustInsecureAcceptAll.
	CAFile string

	// Timeout bounds the whole request. Defaults to 30 seconds if zero.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client issues authenticated trigger requests.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client whose transport applies opts.TrustPolicy.
func NewClient(opts ClientOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tlsCfg, err := tlsConfig(opts.TrustPolicy, opts.CAFile)
	if err != nil {
		return nil, err
	}
	if opts.TrustPolicy == TrustInsecureAcceptAll {
		logger.Warn("build trigger certificate verification is disabled", "trust_policy", opts.TrustPolicy.String())
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

// Trigger sends GET target with HTTP basic credentials and returns the
// response status code. The Jenkins remote build API starts a job on GET. The
// request is sent exactly once, and only over https.
func (c *Client) Trigger(ctx context.Context, target, user, token string) (int, error) {
	u, err := url.Parse(target)
	if err != nil {
		return 0, &TransportError{URL: redact(target), Err: errors.New("malformed trigger URL")}
	}
	if u.Scheme != "https" {
		return 0, &TransportError{URL: redact(target), Err: ErrInsecureScheme}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, &TransportError{URL: redact(target), Err: errors.New("malformed trigger URL")}
	}
	req.Header.Set("Authorization", BasicAuth(user, token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the full URL, including the job token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return 0, &TransportError{URL: redact(target), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

// BasicAuth returns the Authorization header value for user and token.
func BasicAuth(user, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+token))
}

// redact masks the build token in a trigger URL so it can be logged.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
