package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstore/errors"
)

type material struct {
	dir  string
	cert string // self-signed, usable as CA and as client certificate
	key  string
	der  []byte
}

func newMaterial(t *testing.T) material {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "docstore-test-ca"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	m := material{dir: t.TempDir(), der: der}
	m.cert = m.write(t, "ca.pem", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	m.key = m.write(t, "key.pem", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return m
}

func (m material) write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(m.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		cfg   ClientConfig
		valid bool
	}{
		"disabled section is not inspected": {ClientConfig{CertFile: "c.pem", MinVersion: "0.9"}, true},
		"enabled with defaults":             {ClientConfig{Enabled: true}, true},
		"tls 1.3":                           {ClientConfig{Enabled: true, MinVersion: "1.3"}, true},
		"key pair":                          {ClientConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem"}, true},
		"cert only":                         {ClientConfig{Enabled: true, CertFile: "c.pem"}, false},
		"key only":                          {ClientConfig{Enabled: true, KeyFile: "k.pem"}, false},
		"tls 1.1":                           {ClientConfig{Enabled: true, MinVersion: "1.1"}, false},
	} {
		t.Run(name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoad_DisabledIsPlainTCP(t *testing.T) {
	cfg, err := ClientConfig{CAFiles: []string{"/missing/ca.pem"}}.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := ClientConfig{Enabled: true, ServerName: "nats.internal"}.Load()
	require.NoError(t, err)

	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "nats.internal", cfg.ServerName)
	assert.NotNil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestLoad_ExtraCATrusted(t *testing.T) {
	m := newMaterial(t)
	cfg, err := ClientConfig{Enabled: true, CAFiles: []string{m.cert}, MinVersion: "1.3"}.Load()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)

	leaf, err := x509.ParseCertificate(m.der)
	require.NoError(t, err)
	_, err = leaf.Verify(x509.VerifyOptions{Roots: cfg.RootCAs})
	assert.NoError(t, err, "the configured CA must be in the root pool")
}

func TestLoad_ClientCertificate(t *testing.T) {
	m := newMaterial(t)
	cfg, err := ClientConfig{Enabled: true, CertFile: m.cert, KeyFile: m.key, InsecureSkipVerify: true}.Load()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, m.der, cfg.Certificates[0].Certificate[0])
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestLoad_UnreadableMaterialIsFatal(t *testing.T) {
	m := newMaterial(t)
	garbage := m.write(t, "garbage.pem", []byte("-----BEGIN NOTHING-----"))
	missing := filepath.Join(m.dir, "missing.pem")

	for name, cfg := range map[string]ClientConfig{
		"missing CA":       {Enabled: true, CAFiles: []string{m.cert, missing}},
		"CA without PEM":   {Enabled: true, CAFiles: []string{garbage}},
		"missing key":      {Enabled: true, CertFile: m.cert, KeyFile: missing},
		"key is not a key": {Enabled: true, CertFile: m.cert, KeyFile: garbage},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := cfg.Load()
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err), "%v", err)
		})
	}

	_, err := ClientConfig{Enabled: true, MinVersion: "1.0"}.Load()
	assert.True(t, errors.IsInvalid(err), "validation runs before any file is read")
}
