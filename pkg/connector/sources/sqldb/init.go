package sqldb

import (
	"github.com/kennyhitachi/hci-connectors/pkg/connector/registry"
)

func init() {
	registry.RegisterSource(Scheme, NewSQLSource)

	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        Scheme,
		Type:        "source",
		Description: "Relational table or query crawled in ordered pages (SQL Server, MySQL, PostgreSQL, OFFSET/FETCH drivers)",
		Version:     "1.0.0",
		Capabilities: []string{
			"paging",
			"content",
			"get_by_id",
		},
		ConfigSchema: map[string]interface{}{
			"driver": map[string]interface{}{
				"type":        "string",
				"default":     "sqlserver",
				"description": "sqlserver, mysql, postgres or any registered database/sql driver",
			},
			"connection_string": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"secret":      true,
				"description": "Driver connection string",
			},
			"table": map[string]interface{}{
				"type":        "string",
				"description": "Table to crawl (exclusive with query)",
			},
			"query": map[string]interface{}{
				"type":        "string",
				"description": "SELECT to crawl (exclusive with table)",
			},
			"id_columns": map[string]interface{}{
				"type":        "list",
				"required":    true,
				"description": "Columns identifying a row",
			},
			"display_columns": map[string]interface{}{
				"type":        "list",
				"description": "Columns joined into the display name (default id_columns)",
			},
			"version_columns": map[string]interface{}{
				"type":        "list",
				"description": "Columns joined into the version (default \"1\")",
			},
			"content_column": map[string]interface{}{
				"type":        "string",
				"description": "Column streamed as content (default: row as JSON)",
			},
			"order_by": map[string]interface{}{
				"type":        "list",
				"description": "Page ordering (default id_columns)",
			},
			"batch_size": map[string]interface{}{
				"type":        "integer",
				"default":     1000,
				"description": "Rows per page; 0 or less reads everything in one query",
			},
		},
	})
}
