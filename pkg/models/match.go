package models

import "time"

// MatchMethod tags how a MatchLink was produced
type MatchMethod string

const (
	MatchMethodExact             MatchMethod = "exact"
	MatchMethodFuzzyName         MatchMethod = "fuzzy_name"
	MatchMethodFuzzyEmail        MatchMethod = "fuzzy_email"
	MatchMethodFuzzyPhone        MatchMethod = "fuzzy_phone"
	MatchMethodFuzzyOrganization MatchMethod = "fuzzy_organization"
	MatchMethodSimilarityCluster MatchMethod = "similarity_cluster"
)

// MatchLink is an immutable scored edge between two source records
type MatchLink struct {
	SourceID  string      `json:"source_id"`
	TargetID  string      `json:"target_id"`
	BatchID   string      `json:"batch_id"`
	Method    MatchMethod `json:"method"`
	Score     float64     `json:"score"`
	Metadata  Metadata    `json:"metadata,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Key returns an order-independent identifier for the linked pair
func (l MatchLink) Key() string {
	return PairKey(l.SourceID, l.TargetID)
}

// PairKey returns an order-independent key for two record ids
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// ClusterStatus is the review lifecycle of a MatchCluster
type ClusterStatus string

const (
	ClusterStatusPending  ClusterStatus = "pending"
	ClusterStatusReviewed ClusterStatus = "reviewed"
	ClusterStatusResolved ClusterStatus = "resolved"
)

// MergeSuggestion is a ranked grouping of records proposed for review
type MergeSuggestion struct {
	PrimaryID    string   `json:"primary_id"`
	CandidateIDs []string `json:"candidate_ids"`
	Confidence   float64  `json:"confidence"`
	Reason       string   `json:"reason"`
}

// MatchCluster is a connected component of the match graph
type MatchCluster struct {
	ID              string            `json:"id"`
	BatchID         string            `json:"batch_id"`
	RecordIDs       []string          `json:"record_ids"`
	Links           []MatchLink       `json:"links"`
	Status          ClusterStatus     `json:"status"`
	SuggestedMerges []MergeSuggestion `json:"suggested_merges,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// IsSingleton reports whether the cluster holds exactly one record
func (c *MatchCluster) IsSingleton() bool {
	return len(c.RecordIDs) == 1
}
