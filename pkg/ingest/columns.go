// Package ingest reads delimited input files into raw records and validates them
package ingest

import "strings"

// Column is a recognized input column
type Column string

const (
	ColumnID               Column = "id"
	ColumnSourceID         Column = "sourceId"
	ColumnName             Column = "name"
	ColumnEmail            Column = "email"
	ColumnPhone            Column = "phone"
	ColumnAddress          Column = "address"
	ColumnOrganizationName Column = "organizationName"
	ColumnOrganizationID   Column = "organizationId"
	ColumnSource           Column = "source"
	ColumnBatchID          Column = "batchId"
)

// columnAliases maps lowercase header names to recognized columns
var columnAliases = map[string]Column{
	// Identifiers
	"id":          ColumnID,
	"record_id":   ColumnID,
	"external_id": ColumnID,
	"sourceid":    ColumnSourceID,
	"source_id":   ColumnSourceID,

	// Name
	"name":      ColumnName,
	"fullname":  ColumnName,
	"full_name": ColumnName,
	"full name": ColumnName,

	// Contact
	"email":          ColumnEmail,
	"email_address":  ColumnEmail,
	"e-mail":         ColumnEmail,
	"phone":          ColumnPhone,
	"phone_number":   ColumnPhone,
	"telephone":      ColumnPhone,
	"mobile":         ColumnPhone,
	"tel":            ColumnPhone,
	"address":        ColumnAddress,
	"street_address": ColumnAddress,
	"addr":           ColumnAddress,

	// Organization
	"organizationname": ColumnOrganizationName,
	"organization":     ColumnOrganizationName,
	"company":          ColumnOrganizationName,
	"company_name":     ColumnOrganizationName,
	"organizationid":   ColumnOrganizationID,
	"org_id":           ColumnOrganizationID,
	"company_id":       ColumnOrganizationID,

	// Provenance
	"source":        ColumnSource,
	"source_system": ColumnSource,
	"batchid":       ColumnBatchID,
	"batch_id":      ColumnBatchID,
	"batch":         ColumnBatchID,
}

// ResolveColumn maps a raw header to a recognized column, case-insensitively
func ResolveColumn(header string) (Column, bool) {
	col, ok := columnAliases[strings.ToLower(strings.TrimSpace(header))]
	return col, ok
}
