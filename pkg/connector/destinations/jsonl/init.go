package jsonl

import (
	"github.com/kennyhitachi/hci-connectors/pkg/compression"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/registry"
)

func init() {
	registry.RegisterDestination(Name, NewJSONLDestination)

	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         Name,
		Type:         "destination",
		Description:  "Newline delimited JSON file, one line per record",
		Version:      "1.0.0",
		Capabilities: []string{"compression", "inline_content"},
		ConfigSchema: map[string]interface{}{
			"path": map[string]interface{}{
				"type":     "string",
				"required": true,
			},
			"compression": map[string]interface{}{
				"type":    "string",
				"default": string(compression.None),
				"enum":    compression.Algorithms(),
			},
			"compression_level": map[string]interface{}{
				"type":    "integer",
				"default": int(compression.Default),
			},
			"max_inline_bytes": map[string]interface{}{
				"type":        "integer",
				"default":     defaultMaxInlineBytes,
				"description": "Largest content embedded as base64; 0 never embeds content",
			},
		},
	})
}
