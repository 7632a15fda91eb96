// Package tlsutil builds client TLS configurations for backend connections.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/docstore/errors"
)

var minVersions = map[string]uint16{
	"":    tls.VersionTLS12,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// ClientConfig is the TLS section shared by the NATS and etcd backends.
// The system CA bundle is always trusted and CAFiles add to it. CertFile and KeyFile
// present a client certificate for mutual TLS.
type ClientConfig struct {
	Enabled            bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	CAFiles            []string `mapstructure:"ca_files" json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	CertFile           string   `mapstructure:"cert_file" json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string   `mapstructure:"key_file" json:"key_file,omitempty" yaml:"key_file,omitempty"`
	ServerName         string   `mapstructure:"server_name" json:"server_name,omitempty" yaml:"server_name,omitempty"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"` // tests only
	MinVersion         string   `mapstructure:"min_version" json:"min_version,omitempty" yaml:"min_version,omitempty"`
}

// Validate checks the settings without reading any file. A disabled section is always valid.
func (c ClientConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tlsutil", "Validate",
			"cert_file and key_file must be set together")
	}
	if _, ok := minVersions[c.MinVersion]; !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tlsutil", "Validate",
			fmt.Sprintf("min_version %q is not one of 1.2, 1.3", c.MinVersion))
	}
	return nil
}

// Load returns the tls.Config for a backend client, or nil when TLS is disabled.
// Unreadable certificate material is a fatal error.
func (c ClientConfig) Load() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	roots, err := c.rootPool()
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:         minVersions[c.MinVersion],
		RootCAs:            roots,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in for test clusters
	}

	if c.CertFile != "" {
		pair, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Load", "load client key pair")
		}
		cfg.Certificates = []tls.Certificate{pair}
	}
	return cfg, nil
}

func (c ClientConfig) rootPool() (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	for _, path := range c.CAFiles {
		pemData, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Load", "read CA file "+path)
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.WrapFatal(fmt.Errorf("no certificates in %s", path), "tlsutil", "Load", "parse CA file")
		}
	}
	return pool, nil
}
