package config

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// LoadViper reads a connector configuration through viper so any key can be
// overridden from the environment. With envPrefix "HCI" the property
// properties.batch_size is overridden by HCI_PROPERTIES_BATCH_SIZE.
// ${VAR} references in the file are replaced before it is parsed.
//
// Properties and credentials keys present only in the environment are not
// discovered; the file must name every key that may be overridden.
func LoadViper(filePath, envPrefix string) (*BaseConfig, error) {
	data, err := readFile(filePath)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType(configType(filePath))
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file").WithDetail("path", filePath)
	}

	cfg := NewBaseConfig("", "")
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config").WithDetail("path", filePath)
	}

	// viper lower-cases map keys and Unmarshal does not consult the
	// environment for nested map entries, so resolve them explicitly.
	cfg.Properties = resolveMap(v, "properties")
	cfg.Security.Credentials = resolveMap(v, "security.credentials")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveMap(v *viper.Viper, prefix string) map[string]string {
	out := make(map[string]string)
	for key := range v.GetStringMap(prefix) {
		out[key] = v.GetString(prefix + "." + key)
	}
	return out
}

// configType derives the viper format from the file extension; files without
// one are YAML.
func configType(filePath string) string {
	if ext := strings.TrimPrefix(filepath.Ext(filePath), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "yaml"
}
