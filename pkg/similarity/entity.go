package similarity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Field names used in scores, weights and matched-field lists
const (
	FieldName         = "name"
	FieldEmail        = "email"
	FieldPhone        = "phone"
	FieldOrganization = "organization"
	FieldAddress      = "address"
)

// supportingFields can corroborate a fuzzy name match
var supportingFields = []string{FieldEmail, FieldPhone, FieldOrganization}

// Config holds the thresholds and weights of the merge-decision policy
type Config struct {
	NameThreshold         float64 // name similarity needed alongside a supporting field (default: 0.85)
	NameOnlyThreshold     float64 // name similarity that merges on its own (default: 0.97)
	EmailThreshold        float64 // default: 1.0
	PhoneThreshold        float64 // default: 1.0
	OrganizationThreshold float64 // default: 1.0
	AddressThreshold      float64 // default: 0.9
	NameWeight            float64 // default: 0.4
	EmailWeight           float64 // default: 0.25
	PhoneWeight           float64 // default: 0.15
	OrganizationWeight    float64 // default: 0.1
	AddressWeight         float64 // default: 0.1
	WinklerScale          float64 // default: 0.1
}

// DefaultConfig returns the default merge policy
func DefaultConfig() Config {
	return Config{
		NameThreshold:         0.85,
		NameOnlyThreshold:     0.97,
		EmailThreshold:        1.0,
		PhoneThreshold:        1.0,
		OrganizationThreshold: 1.0,
		AddressThreshold:      0.9,
		NameWeight:            0.4,
		EmailWeight:           0.25,
		PhoneWeight:           0.15,
		OrganizationWeight:    0.1,
		AddressWeight:         0.1,
		WinklerScale:          DefaultWinklerScale,
	}
}

// Validate rejects thresholds outside [0,1], negative weights and a Winkler scale above 0.25
func (c Config) Validate() error {
	var errs []error
	thresholds := map[string]float64{
		"name_threshold":         c.NameThreshold,
		"name_only_threshold":    c.NameOnlyThreshold,
		"email_threshold":        c.EmailThreshold,
		"phone_threshold":        c.PhoneThreshold,
		"organization_threshold": c.OrganizationThreshold,
		"address_threshold":      c.AddressThreshold,
	}
	for _, key := range sortedKeys(thresholds) {
		if v := thresholds[key]; v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", key, v))
		}
	}

	var total float64
	weights := c.Weights()
	for _, key := range sortedKeys(weights) {
		if v := weights[key]; v < 0 {
			errs = append(errs, fmt.Errorf("%s weight must not be negative, got %v", key, v))
		}
		total += weights[key]
	}
	if total <= 0 {
		errs = append(errs, errors.New("at least one field weight must be positive"))
	}

	if c.WinklerScale < 0 || c.WinklerScale > 0.25 {
		errs = append(errs, fmt.Errorf("winkler_scale must be within [0,0.25], got %v", c.WinklerScale))
	}
	return errors.Join(errs...)
}

// Weights returns the field weights keyed by field name
func (c Config) Weights() map[string]float64 {
	return map[string]float64{
		FieldName:         c.NameWeight,
		FieldEmail:        c.EmailWeight,
		FieldPhone:        c.PhoneWeight,
		FieldOrganization: c.OrganizationWeight,
		FieldAddress:      c.AddressWeight,
	}
}

func (c Config) threshold(field string) float64 {
	switch field {
	case FieldName:
		return c.NameThreshold
	case FieldEmail:
		return c.EmailThreshold
	case FieldPhone:
		return c.PhoneThreshold
	case FieldOrganization:
		return c.OrganizationThreshold
	default:
		return c.AddressThreshold
	}
}

// EntitySimilarity is the per-field comparison of two records
type EntitySimilarity struct {
	FieldScores   map[string]float64 `json:"field_scores"`
	Overall       float64            `json:"overall"`
	MatchedFields []string           `json:"matched_fields"`
	Reason        string             `json:"reason"`
}

// Matched reports whether field met its threshold
func (e EntitySimilarity) Matched(field string) bool {
	for _, f := range e.MatchedFields {
		if f == field {
			return true
		}
	}
	return false
}

// MergeDecision is the outcome of ShouldMerge
type MergeDecision struct {
	ShouldMerge bool             `json:"should_merge"`
	Confidence  float64          `json:"confidence"`
	Reason      string           `json:"reason"`
	Similarity  EntitySimilarity `json:"similarity"`
}

// Engine scores entity pairs under a Config
type Engine struct {
	scorer *Scorer
	config Config
}

// NewEngine creates a similarity engine
func NewEngine(config Config) *Engine {
	return &Engine{scorer: NewScorer(), config: config}
}

// Config returns the engine's policy
func (e *Engine) Config() Config {
	return e.config
}

// Compare scores every field present on both records. The overall score is
// normalized over the weights of the compared fields only.
func (e *Engine) Compare(a, b models.NormalizedRecord) EntitySimilarity {
	scores := map[string]float64{}
	if a.Name != "" && b.Name != "" {
		scores[FieldName] = e.scorer.JaroWinkler(strings.ToLower(a.Name), strings.ToLower(b.Name), e.config.WinklerScale)
	}
	if a.Email != "" && b.Email != "" {
		scores[FieldEmail] = e.scorer.ExactMatch(a.Email, b.Email, false)
	}
	if a.Phone != "" && b.Phone != "" {
		scores[FieldPhone] = e.scorer.ExactMatch(a.Phone, b.Phone, true)
	}
	if a.OrganizationID != "" && b.OrganizationID != "" {
		scores[FieldOrganization] = e.scorer.ExactMatch(a.OrganizationID, b.OrganizationID, false)
	}
	if a.Address != "" && b.Address != "" {
		scores[FieldAddress] = e.scorer.JaroWinkler(strings.ToLower(a.Address), strings.ToLower(b.Address), e.config.WinklerScale)
	}

	sim := EntitySimilarity{
		FieldScores:   scores,
		Overall:       e.scorer.WeightedScore(scores, e.config.Weights()),
		MatchedFields: []string{},
	}
	for _, field := range []string{FieldName, FieldEmail, FieldPhone, FieldOrganization, FieldAddress} {
		score, ok := scores[field]
		if ok && score >= e.config.threshold(field) {
			sim.MatchedFields = append(sim.MatchedFields, field)
		}
	}

	if len(sim.MatchedFields) == 0 {
		sim.Reason = "No fields matched"
	} else {
		sim.Reason = fmt.Sprintf("Matched fields: %s", strings.Join(sim.MatchedFields, ", "))
	}
	return sim
}

// ShouldMerge applies the merge policy in priority order: exact email, exact
// organization id, corroborated name similarity, then name similarity alone.
func (e *Engine) ShouldMerge(a, b models.NormalizedRecord) MergeDecision {
	sim := e.Compare(a, b)

	if score, ok := sim.FieldScores[FieldEmail]; ok && score == 1.0 {
		return MergeDecision{ShouldMerge: true, Confidence: 1.0, Reason: "Exact email match", Similarity: sim}
	}
	if score, ok := sim.FieldScores[FieldOrganization]; ok && score == 1.0 {
		return MergeDecision{ShouldMerge: true, Confidence: 1.0, Reason: "Exact organization ID match", Similarity: sim}
	}

	nameScore, hasName := sim.FieldScores[FieldName]
	if !hasName {
		return MergeDecision{Confidence: sim.Overall, Reason: "No name to compare", Similarity: sim}
	}

	if nameScore >= e.config.NameThreshold {
		for _, field := range supportingFields {
			if sim.Matched(field) {
				return MergeDecision{
					ShouldMerge: true,
					Confidence:  sim.Overall,
					Reason:      fmt.Sprintf("Name similarity %.2f with matching %s", nameScore, field),
					Similarity:  sim,
				}
			}
		}
	}

	if nameScore >= e.config.NameOnlyThreshold {
		return MergeDecision{
			ShouldMerge: true,
			Confidence:  nameScore,
			Reason:      fmt.Sprintf("Name similarity %.2f", nameScore),
			Similarity:  sim,
		}
	}

	return MergeDecision{
		Confidence: sim.Overall,
		Reason:     fmt.Sprintf("Name similarity %.2f below threshold", nameScore),
		Similarity: sim,
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
