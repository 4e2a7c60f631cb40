package core

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RetryTimeoutConfig bundles the retry and timeout knobs of a session. It is
// passed by value; operations that accept a timeout can override individual
// values per call.
type RetryTimeoutConfig struct {
	// ConnectTimeout bounds establishing a TCP/TLS connection.
	ConnectTimeout time.Duration

	// ConnectRetries is the number of additional connect attempts after the
	// first failure.
	ConnectRetries int

	// ReadTimeout bounds waiting for a response on an established
	// connection.
	ReadTimeout time.Duration

	// ReadRetries is the number of additional attempts after a read
	// failure. Only idempotent requests (the GET family) are retried.
	ReadRetries int

	// MaxRedirects caps the number of HTTP redirects followed per request.
	MaxRedirects int

	// OperationTimeout caps waiting for an asynchronous job to reach a
	// terminal status.
	OperationTimeout time.Duration

	// StatusTimeout caps waiting for a resource to reach a desired status.
	StatusTimeout time.Duration

	// NameURICacheTTL is the validity period of name-to-URI cache entries.
	NameURICacheTTL time.Duration
}

// DefaultRetryTimeoutConfig provides the documented defaults.
func DefaultRetryTimeoutConfig() RetryTimeoutConfig {
	return RetryTimeoutConfig{
		ConnectTimeout:   30 * time.Second,
		ConnectRetries:   3,
		ReadTimeout:      3600 * time.Second,
		ReadRetries:      0,
		MaxRedirects:     30,
		OperationTimeout: 3600 * time.Second,
		StatusTimeout:    900 * time.Second,
		NameURICacheTTL:  300 * time.Second,
	}
}

// CertMode selects how server certificates are verified.
type CertMode int

const (
	// CertVerifySystem verifies against the platform trust store, or the
	// bundle named by the ZHMC_CA_BUNDLE environment variable if set.
	CertVerifySystem CertMode = iota

	// CertVerifyPath verifies against a caller-supplied PEM file or a
	// directory of PEM files.
	CertVerifyPath

	// CertInsecure disables verification. Discouraged outside test setups.
	CertInsecure
)

// CertPolicy is the certificate verification policy of a session or
// notification receiver.
type CertPolicy struct {
	Mode CertMode
	Path string // PEM file or directory, for CertVerifyPath
}

// TLSConfig builds the tls.Config implementing the policy.
func (p CertPolicy) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	switch p.Mode {
	case CertInsecure:
		cfg.InsecureSkipVerify = true
		return cfg, nil
	case CertVerifySystem:
		if bundle := os.Getenv("ZHMC_CA_BUNDLE"); bundle != "" {
			pool, err := loadCertPool(bundle)
			if err != nil {
				return nil, &AuthError{Client: true, Message: "cannot load CA bundle from ZHMC_CA_BUNDLE", Err: err}
			}
			cfg.RootCAs = pool
		}
		return cfg, nil
	case CertVerifyPath:
		pool, err := loadCertPool(p.Path)
		if err != nil {
			return nil, &AuthError{Client: true, Message: fmt.Sprintf("cannot load CA certificates from %s", p.Path), Err: err}
		}
		cfg.RootCAs = pool
		return cfg, nil
	}
	return nil, fmt.Errorf("unknown certificate mode %d", p.Mode)
}

// loadCertPool reads a PEM file, or every *.pem file in a directory, into a
// certificate pool.
func loadCertPool(path string) (*x509.CertPool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.pem"))
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no *.pem files in %s", path)
		}
	}
	for _, f := range files {
		pem, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", f)
		}
	}
	return pool, nil
}
