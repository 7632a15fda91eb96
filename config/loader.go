package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/c360/docstore/errors"
)

// EnvPrefix prefixes every environment override, e.g. DOCSTORE_NATS_URL
const EnvPrefix = "DOCSTORE"

// Load reads configuration from path (YAML or JSON, chosen by extension) layered over the
// defaults, then applies DOCSTORE_* environment overrides and validates the result.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "read config file "+path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance seeded with every default so AutomaticEnv can resolve
// nested keys that no file mentions.
func newViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("backend", string(d.Backend))
	v.SetDefault("bucket", d.Bucket)
	v.SetDefault("default_format", d.DefaultFormat)
	v.SetDefault("operation_timeout", d.OperationTimeout)
	v.SetDefault("create_only_on_zero_token", d.CreateOnlyOnZeroToken)

	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.initial_delay", d.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	v.SetDefault("retry.jitter", d.Retry.Jitter)

	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.username", d.NATS.Username)
	v.SetDefault("nats.password", d.NATS.Password)
	v.SetDefault("nats.token", d.NATS.Token)
	v.SetDefault("nats.name", d.NATS.Name)
	v.SetDefault("nats.timeout", d.NATS.Timeout)
	v.SetDefault("nats.history", d.NATS.History)
	v.SetDefault("nats.replicas", d.NATS.Replicas)
	setTLSDefaults(v, "nats.tls")

	v.SetDefault("etcd.endpoints", d.Etcd.Endpoints)
	v.SetDefault("etcd.dial_timeout", d.Etcd.DialTimeout)
	v.SetDefault("etcd.username", d.Etcd.Username)
	v.SetDefault("etcd.password", d.Etcd.Password)
	v.SetDefault("etcd.prefix", d.Etcd.Prefix)
	setTLSDefaults(v, "etcd.tls")

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setTLSDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".enabled", false)
	v.SetDefault(prefix+".ca_files", []string{})
	v.SetDefault(prefix+".cert_file", "")
	v.SetDefault(prefix+".key_file", "")
	v.SetDefault(prefix+".insecure_skip_verify", false)
	v.SetDefault(prefix+".min_version", "")
	v.SetDefault(prefix+".server_name", "")
}
