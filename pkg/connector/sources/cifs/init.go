package cifs

import (
	"github.com/kennyhitachi/hci-connectors/pkg/connector/registry"
)

func init() {
	registry.RegisterSource(Scheme, NewCIFSSource)

	registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:        Scheme,
		Type:        "source",
		Description: "Directory tree on an SMB2/3 share, listed in Readdir pages",
		Version:     "1.0.0",
		Capabilities: []string{
			"paging",
			"hierarchy",
			"content",
			"path_patterns",
		},
		ConfigSchema: map[string]interface{}{
			"backend": map[string]interface{}{
				"type":        "string",
				"default":     BackendSMB,
				"description": "smb, or local to crawl a directory of this machine",
			},
			"host": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"description": "SMB server host name or address",
			},
			"port": map[string]interface{}{
				"type":    "integer",
				"default": defaultSMBPort,
			},
			"share": map[string]interface{}{
				"type":        "string",
				"required":    true,
				"description": "Share name",
			},
			"base_path": map[string]interface{}{
				"type":        "string",
				"default":     "/",
				"description": "Folder within the share the crawl starts from",
			},
			"domain": map[string]interface{}{
				"type": "string",
			},
			"username": map[string]interface{}{
				"type":   "string",
				"secret": true,
			},
			"password": map[string]interface{}{
				"type":   "string",
				"secret": true,
			},
			"include_patterns": map[string]interface{}{
				"type":        "list",
				"description": "Files to list; empty lists everything",
			},
			"exclude_patterns": map[string]interface{}{
				"type":        "list",
				"description": "Files and folders to skip; checked before include_patterns",
			},
			"include_hidden": map[string]interface{}{
				"type":    "boolean",
				"default": false,
			},
			"batch_size": map[string]interface{}{
				"type":        "integer",
				"default":     1000,
				"description": "Entries per directory read; 0 or less reads a directory at once",
			},
		},
	})
}
