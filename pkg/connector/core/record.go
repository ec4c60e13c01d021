// Package core defines the contract between crawl sources, destinations and
// the pipeline that connects them.
package core

import (
	"time"
)

// Reserved metadata keys. Mappers never copy a source column or attribute
// onto one of these names.
const (
	FieldID          = "id"
	FieldURI         = "uri"
	FieldDisplayName = "displayName"
	FieldVersion     = "version"
	FieldFilename    = "filename"
	FieldSize        = "size"
	FieldModified    = "modified"
	FieldCreated     = "created"
	FieldChanged     = "changed"
	FieldAccessed    = "accessed"
	FieldContainer   = "container"
)

var reservedFields = map[string]struct{}{
	FieldID:          {},
	FieldURI:         {},
	FieldDisplayName: {},
	FieldVersion:     {},
	FieldFilename:    {},
	FieldSize:        {},
	FieldModified:    {},
	FieldCreated:     {},
	FieldChanged:     {},
	FieldAccessed:    {},
	FieldContainer:   {},
}

// IsReserved reports whether name is a reserved metadata key.
func IsReserved(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// Record is one crawled item normalized to the host document shape.
type Record struct {
	// ID is stable and re-resolvable through the source that produced it
	ID          string
	URI         string
	DisplayName string
	// Version changes whenever the underlying item changes
	Version     string
	IsContainer bool
	HasContent  bool
	Size        int64
	ModifiedAt  time.Time
	Metadata    map[string]interface{}
}

// NewRecord creates a record with an empty metadata bag.
func NewRecord(id, uri, displayName string) *Record {
	return &Record{
		ID:          id,
		URI:         uri,
		DisplayName: displayName,
		Metadata:    make(map[string]interface{}),
	}
}

// SetMetadata stores a metadata value.
func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// Document returns the record as the flat key/value bag hosts consume:
// the metadata plus the reserved fields.
func (r *Record) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(r.Metadata)+5)
	for k, v := range r.Metadata {
		doc[k] = v
	}
	doc[FieldID] = r.ID
	doc[FieldURI] = r.URI
	doc[FieldDisplayName] = r.DisplayName
	doc[FieldContainer] = r.IsContainer
	if r.Version != "" {
		doc[FieldVersion] = r.Version
	}
	return doc
}
