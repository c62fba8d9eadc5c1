package trigger

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TrustPolicy selects how the trigger client verifies server certificates.
type TrustPolicy int

const (
	// TrustSystemDefault verifies certificates against the system roots plus
	// any configured CA bundle.
	TrustSystemDefault TrustPolicy = iota

	// TrustInsecureAcceptAll accepts any certificate. Only for CI hosts with
	// self-signed certificates that cannot be given a CA bundle.
	TrustInsecureAcceptAll
)

func (p TrustPolicy) String() string {
	switch p {
	case TrustSystemDefault:
		return "system"
	case TrustInsecureAcceptAll:
		return "insecure-accept-all"
	default:
		return fmt.Sprintf("TrustPolicy(%d)", int(p))
	}
}

// ParseTrustPolicy parses the configuration name of a policy.
func ParseTrustPolicy(s string) (TrustPolicy, error) {
	switch s {
	case "", "system":
		return TrustSystemDefault, nil
	case "insecure-accept-all":
		return TrustInsecureAcceptAll, nil
	default:
		return 0, fmt.Errorf("trigger: unknown trust policy %q (valid: system, insecure-accept-all)", s)
	}
}

// tlsConfig builds the client TLS configuration for policy.
func tlsConfig(policy TrustPolicy, caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	switch policy {
	case TrustSystemDefault:
	case TrustInsecureAcceptAll:
		cfg.InsecureSkipVerify = true //nolint:gosec // G402: explicit opt-in trust policy
		return cfg, nil
	default:
		return nil, fmt.Errorf("trigger: unsupported trust policy %s", policy)
	}

	if caFile != "" {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("trigger: read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("trigger: no valid certificates found in %s", caFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
