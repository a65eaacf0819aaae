package models

import "fmt"

// RawRecord is one ingested CSV row. It is never mutated after the reader creates it.
type RawRecord struct {
	ID               string   `json:"id" validate:"required"`
	SourceID         string   `json:"source_id,omitempty" validate:"max=255"`
	Name             string   `json:"name" validate:"required,max=255"`
	Email            string   `json:"email,omitempty" validate:"omitempty,max=255,email"`
	Phone            string   `json:"phone,omitempty" validate:"max=64"`
	Address          string   `json:"address,omitempty" validate:"max=500"`
	OrganizationName string   `json:"organization_name,omitempty" validate:"max=255"`
	OrganizationID   string   `json:"organization_id,omitempty" validate:"max=255"`
	Source           string   `json:"source" validate:"required,max=255"`
	BatchID          string   `json:"batch_id" validate:"required,max=255"`
	Metadata         Metadata `json:"metadata,omitempty"`

	// Row is the 1-based data row the record was read from
	Row int `json:"row"`
}

// NormalizedRecord is a RawRecord whose identifying fields have been canonicalized
type NormalizedRecord struct {
	ID               string   `json:"id"`
	SourceID         string   `json:"source_id,omitempty"`
	Name             string   `json:"name"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Address          string   `json:"address,omitempty"`
	OrganizationName string   `json:"organization_name,omitempty"`
	OrganizationID   string   `json:"organization_id,omitempty"`
	Source           string   `json:"source"`
	BatchID          string   `json:"batch_id"`
	NaturalKey       string   `json:"natural_key"`
	Metadata         Metadata `json:"metadata,omitempty"`
	Row              int      `json:"row"`
}

// RecordError describes a record excluded by schema validation
type RecordError struct {
	Row      int    `json:"row"`
	RecordID string `json:"record_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

func (e RecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: field '%s': %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}
