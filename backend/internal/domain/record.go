// backend/internal/domain/record.go

// Package domain holds the types shared by the scrapers, the snapshot store
// and the orchestrator.
package domain

// Metadata fields describe a fetch rather than the entity itself. They are
// expected to change on every scrape and are ignored when comparing versions.
const (
	FieldScrapedAt      = "scraped_at"
	FieldSource         = "source"
	FieldPostcodeFilter = "postcode_filter"
)

// UnknownEntity is the identifier used when an extractor cannot name the
// entity it returned. Distinct entities stored under it share one history.
const UnknownEntity = "unknown"

// MetadataFields returns the default set of fields ignored by change detection.
func MetadataFields() []string {
	return []string{FieldScrapedAt, FieldSource, FieldPostcodeFilter}
}

// Record is one fetched state of an entity: field name to value, arbitrary depth.
type Record map[string]any

// Clone returns a shallow copy of r. Nested values are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the field as a string, or "" when missing or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Entity is a scraped real-world object that can be versioned.
type Entity interface {
	EntityID() string
	Record() Record
}
