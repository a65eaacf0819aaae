package graph

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// encodeJSON stores nested values as a JSON string property; graph
// properties cannot hold maps.
func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func sourceRecordProps(r models.NormalizedRecord) map[string]any {
	return map[string]any{
		"id":                r.ID,
		"source_id":         r.SourceID,
		"name":              r.Name,
		"email":             r.Email,
		"phone":             r.Phone,
		"address":           r.Address,
		"organization_name": r.OrganizationName,
		"organization_id":   r.OrganizationID,
		"source":            r.Source,
		"batch_id":          r.BatchID,
		"natural_key":       r.NaturalKey,
		"row":               int64(r.Row),
		"metadata":          encodeJSON(r.Metadata.Clone()),
	}
}

func matchLinkProps(l models.MatchLink) map[string]any {
	return map[string]any{
		"source_id":  l.SourceID,
		"target_id":  l.TargetID,
		"batch_id":   l.BatchID,
		"method":     string(l.Method),
		"score":      l.Score,
		"metadata":   encodeJSON(l.Metadata.Clone()),
		"created_at": formatTime(l.CreatedAt),
	}
}

func clusterProps(c models.MatchCluster) map[string]any {
	suggestions := c.SuggestedMerges
	if suggestions == nil {
		suggestions = []models.MergeSuggestion{}
	}
	return map[string]any{
		"id":               c.ID,
		"batch_id":         c.BatchID,
		"record_ids":       nonNil(c.RecordIDs),
		"status":           string(c.Status),
		"link_count":       int64(len(c.Links)),
		"suggested_merges": encodeJSON(suggestions),
		"created_at":       formatTime(c.CreatedAt),
	}
}

func goldenRecordProps(g models.GoldenRecord) map[string]any {
	return map[string]any{
		"id":                g.ID,
		"cluster_id":        g.ClusterID,
		"natural_key":       g.NaturalKey,
		"name":              g.Name,
		"emails":            nonNil(g.Emails),
		"phones":            nonNil(g.Phones),
		"addresses":         nonNil(g.Addresses),
		"organization_name": g.OrganizationName,
		"organization_id":   g.OrganizationID,
		"source_record_ids": nonNil(g.SourceRecordIDs),
		"batch_ids":         nonNil(g.BatchIDs),
		"sources":           nonNil(g.Sources),
		"confidence":        g.Confidence,
		"fingerprint":       g.Fingerprint,
		"updated_at":        formatTime(g.UpdatedAt),
	}
}

func batchProps(b models.BatchMeta) map[string]any {
	props := map[string]any{
		"id":                     b.ID,
		"filename":               b.Filename,
		"uploader":               b.Uploader,
		"input_hash":             b.InputHash,
		"total_records":          int64(b.TotalRecords),
		"processed_count":        int64(b.ProcessedCount),
		"status":                 string(b.Status),
		"duplicates_found":       int64(b.Stats.DuplicatesFound),
		"clusters_created":       int64(b.Stats.ClustersCreated),
		"golden_records_created": int64(b.Stats.GoldenRecordsCreated),
		"processing_time_ms":     b.Stats.ProcessingTimeMs,
		"updated_at":             formatTime(b.UpdatedAt),
		"error_message":          nil,
		"completed_at":           nil,
	}
	if b.ErrorMessage != nil {
		props["error_message"] = *b.ErrorMessage
	}
	if b.CompletedAt != nil {
		props["completed_at"] = formatTime(*b.CompletedAt)
	}
	return props
}

func getString(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func getStringPtr(props map[string]any, key string) *string {
	s, ok := props[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func getInt(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func getFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func getStrings(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func getTime(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		t, err := time.Parse(timeLayout, v)
		if err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func getTimePtr(props map[string]any, key string) *time.Time {
	t := getTime(props, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func getMetadata(props map[string]any, key string) models.Metadata {
	md := models.Metadata{}
	if raw := getString(props, key); raw != "" {
		_ = json.Unmarshal([]byte(raw), &md)
	}
	return md
}

func goldenRecordFromProps(props map[string]any) models.GoldenRecord {
	return models.GoldenRecord{
		ID:               getString(props, "id"),
		ClusterID:        getString(props, "cluster_id"),
		NaturalKey:       getString(props, "natural_key"),
		Name:             getString(props, "name"),
		Emails:           getStrings(props, "emails"),
		Phones:           getStrings(props, "phones"),
		Addresses:        getStrings(props, "addresses"),
		OrganizationName: getString(props, "organization_name"),
		OrganizationID:   getString(props, "organization_id"),
		SourceRecordIDs:  getStrings(props, "source_record_ids"),
		BatchIDs:         getStrings(props, "batch_ids"),
		Sources:          getStrings(props, "sources"),
		Confidence:       getFloat(props, "confidence"),
		Fingerprint:      getString(props, "fingerprint"),
		CreatedAt:        getTime(props, "created_at"),
		UpdatedAt:        getTime(props, "updated_at"),
	}
}

func clusterFromProps(props map[string]any) models.MatchCluster {
	var suggestions []models.MergeSuggestion
	if raw := getString(props, "suggested_merges"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &suggestions)
	}
	return models.MatchCluster{
		ID:              getString(props, "id"),
		BatchID:         getString(props, "batch_id"),
		RecordIDs:       getStrings(props, "record_ids"),
		Status:          models.ClusterStatus(getString(props, "status")),
		SuggestedMerges: suggestions,
		CreatedAt:       getTime(props, "created_at"),
	}
}

func batchFromProps(props map[string]any) models.BatchMeta {
	return models.BatchMeta{
		ID:             getString(props, "id"),
		Filename:       getString(props, "filename"),
		Uploader:       getString(props, "uploader"),
		InputHash:      getString(props, "input_hash"),
		TotalRecords:   getInt(props, "total_records"),
		ProcessedCount: getInt(props, "processed_count"),
		Status:         models.BatchStatus(getString(props, "status")),
		ErrorMessage:   getStringPtr(props, "error_message"),
		Stats: models.BatchStats{
			DuplicatesFound:      getInt(props, "duplicates_found"),
			ClustersCreated:      getInt(props, "clusters_created"),
			GoldenRecordsCreated: getInt(props, "golden_records_created"),
			ProcessingTimeMs:     int64(getInt(props, "processing_time_ms")),
		},
		CreatedAt:   getTime(props, "created_at"),
		UpdatedAt:   getTime(props, "updated_at"),
		CompletedAt: getTimePtr(props, "completed_at"),
	}
}

func matchLinkFromProps(sourceID, targetID string, props map[string]any) models.MatchLink {
	return models.MatchLink{
		SourceID:  sourceID,
		TargetID:  targetID,
		BatchID:   getString(props, "batch_id"),
		Method:    models.MatchMethod(getString(props, "method")),
		Score:     getFloat(props, "score"),
		Metadata:  getMetadata(props, "metadata"),
		CreatedAt: getTime(props, "created_at"),
	}
}
