// Package config loads gateway configuration from a YAML file and BUNDLE_
// environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no path is given.
const DefaultPath = "config.yaml"

// EnvPrefix marks environment overrides. BUNDLE_SCORING__BASE_URL sets
// scoring.base_url.
const EnvPrefix = "BUNDLE_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Scoring    ScoringConfig    `koanf:"scoring"`
	Transport  TransportConfig  `koanf:"transport"`
	Validation ValidationConfig `koanf:"validation"`
	Secrets    SecretsConfig    `koanf:"secrets"`
	Storage    StorageConfig    `koanf:"storage"`
	Ledger     LedgerConfig     `koanf:"ledger"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	RequestTimeout string `koanf:"request_timeout"`
}

// ScoringConfig describes the downstream scoring system.
type ScoringConfig struct {
	BaseURL     string `koanf:"base_url"`
	ContentType string `koanf:"content_type"`
	Timeout     string `koanf:"timeout"`
	MaxInFlight int    `koanf:"max_in_flight"`
	// BlockPrivate rejects scoring URLs that resolve to private networks.
	BlockPrivate bool `koanf:"block_private"`
}

type TransportConfig struct {
	DefaultStrategy string            `koanf:"default_strategy"`
	Tenants         map[string]string `koanf:"tenants"` // tenant id -> strategy name
	MTLS            MTLSConfig        `koanf:"mtls"`
	APIKey          APIKeyConfig      `koanf:"api_key"`
}

type MTLSConfig struct {
	CertSecret string `koanf:"cert_secret"`
	KeySecret  string `koanf:"key_secret"`
	CASecret   string `koanf:"ca_secret"`
}

type APIKeyConfig struct {
	HeaderName string `koanf:"header_name"`
	SecretName string `koanf:"secret_name"`
}

type ValidationConfig struct {
	SeverityLevel string        `koanf:"severity_level"`
	Webhook       WebhookConfig `koanf:"webhook"`
}

// WebhookConfig points at an external validator. Empty URL disables it.
type WebhookConfig struct {
	URL     string            `koanf:"url"`
	Timeout string            `koanf:"timeout"`
	Retries int               `koanf:"retries"`
	Backoff string            `koanf:"backoff"`
	Headers map[string]string `koanf:"headers"`
}

type SecretsConfig struct {
	Type      string      `koanf:"type"` // env, file, redis
	EnvPrefix string      `koanf:"env_prefix"`
	Dir       string      `koanf:"dir"`
	Redis     RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

type StorageConfig struct {
	Driver           string            `koanf:"driver"` // sqlite, postgres, memory
	DSN              string            `koanf:"dsn"`
	DispositionRules []DispositionRule `koanf:"disposition_rules"`
}

// DispositionRule lets the state sink attach a disposition directive to
// validation outcomes whose issues match.
type DispositionRule struct {
	Severity string `koanf:"severity"`
	Contains string `koanf:"contains"`
	Action   string `koanf:"action"`
}

type LedgerConfig struct {
	Type  string            `koanf:"type"` // none, log, http, kafka
	HTTP  HTTPLedgerConfig  `koanf:"http"`
	Kafka KafkaLedgerConfig `koanf:"kafka"`
}

type HTTPLedgerConfig struct {
	URL     string `koanf:"url"`
	Timeout string `koanf:"timeout"`
}

type KafkaLedgerConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":                   8080,
	"server.request_timeout":        "30s",
	"scoring.content_type":          "application/json",
	"scoring.timeout":               "30s",
	"scoring.max_in_flight":         64,
	"validation.severity_level":     "error",
	"validation.webhook.timeout":    "10s",
	"secrets.type":                  "env",
	"secrets.env_prefix":            "BUNDLE_SECRET_",
	"secrets.redis.addr":            "localhost:6379",
	"storage.driver":                "sqlite",
	"storage.dsn":                   "file:./data/bundle-gateway.db",
	"ledger.type":                   "log",
	"ledger.http.timeout":           "10s",
	"telemetry.service_name":        "bundle-gateway",
	"transport.api_key.header_name": "X-API-Key",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then BUNDLE_ environment
// overrides, then defaults for anything still unset. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.substitute()
	return &cfg, nil
}

func (c *Config) substitute() {
	c.Scoring.BaseURL = substituteEnvVars(c.Scoring.BaseURL)
	c.Storage.DSN = substituteEnvVars(c.Storage.DSN)
	c.Validation.Webhook.URL = substituteEnvVars(c.Validation.Webhook.URL)
	for name, value := range c.Validation.Webhook.Headers {
		c.Validation.Webhook.Headers[name] = substituteEnvVars(value)
	}
	c.Transport.MTLS.CertSecret = substituteEnvVars(c.Transport.MTLS.CertSecret)
	c.Transport.MTLS.KeySecret = substituteEnvVars(c.Transport.MTLS.KeySecret)
	c.Transport.MTLS.CASecret = substituteEnvVars(c.Transport.MTLS.CASecret)
	c.Transport.APIKey.SecretName = substituteEnvVars(c.Transport.APIKey.SecretName)
	c.Secrets.Redis.Password = substituteEnvVars(c.Secrets.Redis.Password)
	c.Ledger.HTTP.URL = substituteEnvVars(c.Ledger.HTTP.URL)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Duration parses a duration string, returning fallback when it is empty or
// malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
