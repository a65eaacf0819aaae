package normalizers

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// CreateNaturalKey derives the exact-match grouping key for an entity. A present
// organization id takes precedence over name, email and phone.
func CreateNaturalKey(name, email, phone, organizationID string) string {
	if org := CollapseWhitespace(organizationID); org != "" {
		return "org:" + strings.ToLower(org)
	}

	parts := []string{NormalizeName(name)}
	if e := NormalizeEmail(email); e != "" {
		parts = append(parts, "email:"+e)
	}
	if p := NormalizePhone(phone); p != "" {
		parts = append(parts, "phone:"+p)
	}
	return strings.ToLower(strings.Join(parts, "|"))
}

// FieldChains names the normalizer chain applied to each identifying field
var FieldChains = map[string][]string{
	"name":              {"nname"},
	"email":             {"nemail"},
	"phone":             {"nphone"},
	"address":           {"naddress"},
	"organization_name": {"collapse_whitespace"},
	"organization_id":   {"collapse_whitespace"},
	"source_id":         {"trim"},
}

// NormalizeRecord canonicalizes the identifying fields of a raw record and derives
// its natural key. Metadata is copied verbatim.
func NormalizeRecord(raw models.RawRecord) models.NormalizedRecord {
	rec := models.NormalizedRecord{
		ID:               raw.ID,
		SourceID:         ApplyChain(raw.SourceID, FieldChains["source_id"]...),
		Name:             ApplyChain(raw.Name, FieldChains["name"]...),
		Email:            ApplyChain(raw.Email, FieldChains["email"]...),
		Phone:            ApplyChain(raw.Phone, FieldChains["phone"]...),
		Address:          ApplyChain(raw.Address, FieldChains["address"]...),
		OrganizationName: ApplyChain(raw.OrganizationName, FieldChains["organization_name"]...),
		OrganizationID:   ApplyChain(raw.OrganizationID, FieldChains["organization_id"]...),
		Source:           strings.TrimSpace(raw.Source),
		BatchID:          raw.BatchID,
		Metadata:         raw.Metadata.Clone(),
		Row:              raw.Row,
	}
	rec.NaturalKey = CreateNaturalKey(rec.Name, rec.Email, rec.Phone, rec.OrganizationID)
	return rec
}

// NormalizeRecords normalizes a batch, preserving input order
func NormalizeRecords(raws []models.RawRecord) []models.NormalizedRecord {
	out := make([]models.NormalizedRecord, 0, len(raws))
	for _, raw := range raws {
		out = append(out, NormalizeRecord(raw))
	}
	return out
}
