package solr

import (
	"github.com/kennyhitachi/hci-connectors/pkg/connector/registry"
)

func init() {
	registry.RegisterSource(Scheme, NewSolrSource)

	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         Scheme,
		Type:         "source",
		Description:  "Documents of a Solr collection paged with start/rows",
		Version:      "1.0.0",
		Capabilities: []string{"paging", "content", "get_by_id"},
		ConfigSchema: map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"description": "Solr base URL, e.g. http://solr:8983/solr",
			},
			"collection": map[string]interface{}{
				"type":     "string",
				"required": true,
			},
			"query": map[string]interface{}{
				"type":    "string",
				"default": "*:*",
			},
			"id_field": map[string]interface{}{
				"type":    "string",
				"default": "id",
			},
			"display_field": map[string]interface{}{"type": "string"},
			"version_field": map[string]interface{}{
				"type":    "string",
				"default": "_version_",
			},
			"content_field": map[string]interface{}{
				"type":        "string",
				"description": "Stored field streamed as content (default: document as JSON)",
			},
			"fields": map[string]interface{}{
				"type":        "list",
				"description": "Stored fields to return (fl)",
			},
			"username": map[string]interface{}{"type": "string", "secret": true},
			"password": map[string]interface{}{"type": "string", "secret": true},
			"requests_per_second": map[string]interface{}{
				"type":        "integer",
				"default":     0,
				"description": "Upper bound on select requests per second; 0 is unlimited",
			},
			"request_burst": map[string]interface{}{
				"type":    "integer",
				"default": 1,
			},
			"batch_size": map[string]interface{}{
				"type":    "integer",
				"default": 1000,
			},
		},
	})
}
