package models

import "time"

// GoldenRecord is the canonical entity synthesized from one MatchCluster
type GoldenRecord struct {
	ID               string    `json:"id"`
	ClusterID        string    `json:"cluster_id"`
	NaturalKey       string    `json:"natural_key"`
	Name             string    `json:"name"`
	Emails           []string  `json:"emails"`
	Phones           []string  `json:"phones"`
	Addresses        []string  `json:"addresses"`
	OrganizationName string    `json:"organization_name,omitempty"`
	OrganizationID   string    `json:"organization_id,omitempty"`
	SourceRecordIDs  []string  `json:"source_record_ids"`
	BatchIDs         []string  `json:"batch_ids"`
	Sources          []string  `json:"sources"`
	Confidence       float64   `json:"confidence"`
	Fingerprint      string    `json:"fingerprint"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GoldenRecordListResponse is a page of golden records
type GoldenRecordListResponse struct {
	Items      []GoldenRecord `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// MatchClusterListResponse is a page of clusters
type MatchClusterListResponse struct {
	Items      []MatchCluster `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// BatchMetaListResponse is a page of batches
type BatchMetaListResponse struct {
	Items      []BatchMeta `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

// Pagination holds 1-based page parameters
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps page parameters to sane bounds
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 500 {
		p.PageSize = 50
	}
	return p
}

// Offset returns the number of rows to skip
func (p Pagination) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}
