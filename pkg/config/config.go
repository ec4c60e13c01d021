// Package config provides the unified configuration for every crawler connector.
// A single BaseConfig carries the shared sections and a free-form Properties
// map for connector-specific values (table name, share, include patterns...).
//
// Connectors never read Properties directly; they use the typed accessors,
// which fail with a descriptive configuration error when a required value is
// missing or malformed:
//
//	table, err := cfg.RequireString("table")
//	batch, err := cfg.Int("batch_size", cfg.Performance.BatchSize)
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// Item policies for malformed rows or directory entries.
const (
	ItemPolicyFail = "fail"
	ItemPolicySkip = "skip"
)

// BaseConfig is the configuration structure every connector uses.
type BaseConfig struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Type selects the registered connector (e.g. "sqldb", "cifs", "solr")
	Type string `yaml:"type" json:"type" mapstructure:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version" mapstructure:"version"`

	Performance   PerformanceConfig   `yaml:"performance" json:"performance" mapstructure:"performance"`
	Timeouts      TimeoutConfig       `yaml:"timeouts" json:"timeouts" mapstructure:"timeouts"`
	Security      SecurityConfig      `yaml:"security" json:"security" mapstructure:"security"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`

	// Properties holds connector-specific settings as resolved strings
	Properties map[string]string `yaml:"properties" json:"properties" mapstructure:"properties"`
}

// PerformanceConfig controls paging.
type PerformanceConfig struct {
	// BatchSize is the page size; a non-positive value disables paging
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
	// ErrorPolicy decides what happens to a malformed row or entry: fail or skip
	ErrorPolicy string `yaml:"error_policy" json:"error_policy" mapstructure:"error_policy"`
}

// TimeoutConfig contains timeout settings.
type TimeoutConfig struct {
	// Connection bounds session establishment
	Connection time.Duration `yaml:"connection" json:"connection" mapstructure:"connection"`
	// Request bounds a single page or content request
	Request time.Duration `yaml:"request" json:"request" mapstructure:"request"`
	// Idle closes unused pooled connections
	Idle time.Duration `yaml:"idle" json:"idle" mapstructure:"idle"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// EnableTLS enables TLS where the transport supports it
	EnableTLS bool `yaml:"enable_tls" json:"enable_tls" mapstructure:"enable_tls"`
	// TLSSkipVerify disables certificate verification (insecure)
	TLSSkipVerify bool `yaml:"tls_skip_verify" json:"tls_skip_verify" mapstructure:"tls_skip_verify"`
	// Credentials stores secrets (use ${ENV} substitution in files)
	Credentials map[string]string `yaml:"credentials" json:"credentials" mapstructure:"credentials"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	LogLevel      string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
}

// NewBaseConfig creates a BaseConfig with defaults.
func NewBaseConfig(name, connectorType string) *BaseConfig {
	return &BaseConfig{
		Name:    name,
		Type:    connectorType,
		Version: "1.0.0",
		Performance: PerformanceConfig{
			BatchSize:   1000,
			ErrorPolicy: ItemPolicyFail,
		},
		Timeouts: TimeoutConfig{
			Connection: 30 * time.Second,
			Request:    2 * time.Minute,
			Idle:       5 * time.Minute,
		},
		Security: SecurityConfig{
			EnableTLS:   true,
			Credentials: make(map[string]string),
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			LogLevel:      "info",
		},
		Properties: make(map[string]string),
	}
}

// Validate checks the connector-independent fields.
func (bc *BaseConfig) Validate() error {
	if bc == nil {
		return errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	if bc.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	if bc.Type == "" {
		return errors.New(errors.ErrorTypeConfig, "type is required")
	}
	switch bc.Performance.ErrorPolicy {
	case "", ItemPolicyFail, ItemPolicySkip:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "error_policy must be %q or %q, got %q",
			ItemPolicyFail, ItemPolicySkip, bc.Performance.ErrorPolicy)
	}
	return nil
}

// Property returns the trimmed property value and whether it was set to a
// non-empty value.
func (bc *BaseConfig) Property(key string) (string, bool) {
	if bc == nil || bc.Properties == nil {
		return "", false
	}
	v, ok := bc.Properties[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// String returns the property or def when unset.
func (bc *BaseConfig) String(key, def string) string {
	if v, ok := bc.Property(key); ok {
		return v
	}
	return def
}

// RequireString returns the property or a configuration error when unset.
func (bc *BaseConfig) RequireString(key string) (string, error) {
	if v, ok := bc.Property(key); ok {
		return v, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "missing required property: %s", key).
		WithDetail("property", key)
}

// Int parses the property as an integer, returning def when unset and a
// configuration error when the value is not an integer.
func (bc *BaseConfig) Int(key string, def int) (int, error) {
	v, ok := bc.Property(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "property "+key+" must be an integer").
			WithDetail("property", key).
			WithDetail("value", v)
	}
	return n, nil
}

// Bool parses the property as a boolean ("true", "1", "yes", "on" and their
// negations), returning def when unset.
func (bc *BaseConfig) Bool(key string, def bool) (bool, error) {
	v, ok := bc.Property(key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on", "y":
		return true, nil
	case "false", "0", "no", "off", "n":
		return false, nil
	}
	return false, errors.Newf(errors.ErrorTypeConfig, "property %s must be a boolean, got %q", key, v).
		WithDetail("property", key)
}

// List splits a comma separated property, dropping empty elements.
func (bc *BaseConfig) List(key string) []string {
	v, ok := bc.Property(key)
	if !ok {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Secret looks the key up in Security.Credentials first and then in
// Properties, so passwords can live in either place.
func (bc *BaseConfig) Secret(key string) string {
	if bc == nil {
		return ""
	}
	if v := bc.Security.Credentials[key]; v != "" {
		return v
	}
	return bc.String(key, "")
}

// BatchSize resolves the page size from the batch_size property, falling back
// to Performance.BatchSize.
func (bc *BaseConfig) BatchSize() (int, error) {
	return bc.Int("batch_size", bc.Performance.BatchSize)
}

// ItemPolicy returns the configured malformed-item policy, defaulting to fail.
func (bc *BaseConfig) ItemPolicy() string {
	if bc == nil || bc.Performance.ErrorPolicy == "" {
		return ItemPolicyFail
	}
	return bc.Performance.ErrorPolicy
}
