package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// readFile returns the file content with ${VAR} references replaced by
// environment values.
func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").WithDetail("path", filePath)
	}
	return []byte(substituteEnvVars(string(data))), nil
}

// Save writes a configuration as YAML, readable by Load and LoadViper.
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file").WithDetail("path", filePath)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
