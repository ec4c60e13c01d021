package hcp

import (
	"github.com/kennyhitachi/hci-connectors/pkg/connector/registry"
)

func init() {
	registry.RegisterDestination(Name, NewHCPDestination)

	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         Name,
		Type:         "destination",
		Description:  "HCP namespace or S3 compatible bucket; one object per leaf record",
		Version:      "1.0.0",
		Capabilities: []string{"content", "object_metadata"},
		ConfigSchema: map[string]interface{}{
			"bucket": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"description": "Bucket or HCP namespace",
			},
			"prefix": map[string]interface{}{"type": "string"},
			"endpoint": map[string]interface{}{
				"type":        "string",
				"description": "Service endpoint, e.g. https://tenant.hcp.example.com",
			},
			"region": map[string]interface{}{
				"type":    "string",
				"default": defaultRegion,
			},
			"path_style": map[string]interface{}{
				"type":    "boolean",
				"default": true,
			},
			"access_key": map[string]interface{}{"type": "string", "secret": true},
			"secret_key": map[string]interface{}{"type": "string", "secret": true},
			"upload_part_size": map[string]interface{}{
				"type":    "integer",
				"default": defaultUploadPartSize,
			},
		},
	})
}
