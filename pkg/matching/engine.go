// Package matching builds the candidate match graph for one batch
package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/similarity"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultMaxComparisons bounds the fuzzy comparisons attempted per batch
const DefaultMaxComparisons = 10000

// Config contains configuration for the matcher
type Config struct {
	MaxComparisons int // Fuzzy comparison cap per batch (default: 10000)
	Workers        int // Parallel fuzzy workers partitioned by index range (default: 1)
}

// DefaultConfig returns default matcher configuration
func DefaultConfig() Config {
	return Config{
		MaxComparisons: DefaultMaxComparisons,
		Workers:        1,
	}
}

// MatchResult is the match graph of one batch plus the bookkeeping audit needs
type MatchResult struct {
	Links        []models.MatchLink `json:"links"`
	ExactLinks   int                `json:"exact_links"`
	FuzzyLinks   int                `json:"fuzzy_links"`
	Comparisons  int                `json:"comparisons"`
	CapReached   bool               `json:"cap_reached"`
	SkippedPairs int                `json:"skipped_pairs"`
}

// Engine produces MatchLinks from normalized records
type Engine struct {
	logger     ectologger.Logger
	similarity *similarity.Engine
	config     Config
	now        func() time.Time
}

// NewEngine creates a new matcher
func NewEngine(logger ectologger.Logger, sim *similarity.Engine, config Config) *Engine {
	if config.MaxComparisons <= 0 {
		config.MaxComparisons = DefaultMaxComparisons
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Engine{
		logger:     logger,
		similarity: sim,
		config:     config,
		now:        time.Now,
	}
}

type pair struct{ i, j int }

// Match links records sharing a natural key, then fuzzy-compares the remaining
// pairs in (i, j) order until the comparison cap is reached.
func (e *Engine) Match(ctx context.Context, batchID string, records []models.NormalizedRecord) (*MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":     batchID,
		"record_count": len(records),
	})

	createdAt := e.now().UTC()
	result := &MatchResult{Links: []models.MatchLink{}}

	// Exact groups by natural key, in first-encounter order
	groupOf := make([]int, len(records))
	var groups [][]int
	keyIndex := map[string]int{}
	for idx, rec := range records {
		if rec.NaturalKey == "" {
			groupOf[idx] = -1
			continue
		}
		g, ok := keyIndex[rec.NaturalKey]
		if !ok {
			g = len(groups)
			keyIndex[rec.NaturalKey] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], idx)
		groupOf[idx] = g
	}

	exactPairs := 0
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		key := records[members[0]].NaturalKey
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				src, tgt := records[members[a]], records[members[b]]
				result.Links = append(result.Links, models.MatchLink{
					SourceID:  src.ID,
					TargetID:  tgt.ID,
					BatchID:   batchID,
					Method:    models.MatchMethodExact,
					Score:     1.0,
					Metadata:  models.Metadata{"natural_key": models.String(key)},
					CreatedAt: createdAt,
				})
				exactPairs++
			}
		}
	}
	result.ExactLinks = exactPairs

	// Remaining pairs, truncated at the cap
	n := len(records)
	remaining := n*(n-1)/2 - exactPairs
	pairs := make([]pair, 0, min(remaining, e.config.MaxComparisons))
collect:
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if groupOf[i] >= 0 && groupOf[i] == groupOf[j] {
				continue
			}
			if len(pairs) == e.config.MaxComparisons {
				break collect
			}
			pairs = append(pairs, pair{i, j})
		}
	}
	result.Comparisons = len(pairs)
	result.SkippedPairs = remaining - len(pairs)
	result.CapReached = result.SkippedPairs > 0

	fuzzy, err := e.compare(batchID, records, pairs, createdAt)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	result.Links = append(result.Links, fuzzy...)
	result.FuzzyLinks = len(fuzzy)

	if result.CapReached {
		log.WithFields(map[string]any{
			"max_comparisons": e.config.MaxComparisons,
			"skipped_pairs":   result.SkippedPairs,
		}).Warn("Comparison cap reached, remaining fuzzy pairs were not compared")
	}
	log.WithFields(map[string]any{
		"exact_links": result.ExactLinks,
		"fuzzy_links": result.FuzzyLinks,
		"comparisons": result.Comparisons,
	}).Info("Matching complete")

	return result, nil
}

// compare evaluates pairs across workers by contiguous index range. Results are
// written by pair index so the output order does not depend on the worker count.
func (e *Engine) compare(batchID string, records []models.NormalizedRecord, pairs []pair, createdAt time.Time) ([]models.MatchLink, error) {
	found := make([]*models.MatchLink, len(pairs))

	workers := min(e.config.Workers, max(len(pairs), 1))
	chunk := (len(pairs) + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start, end := w*chunk, min((w+1)*chunk, len(pairs))
		if start >= end {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("fuzzy comparison worker panicked: %v", r)
				}
			}()
			for k := start; k < end; k++ {
				p := pairs[k]
				decision := e.similarity.ShouldMerge(records[p.i], records[p.j])
				if !decision.ShouldMerge {
					continue
				}
				link := newFuzzyLink(batchID, records[p.i], records[p.j], decision, createdAt)
				found[k] = &link
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	links := make([]models.MatchLink, 0)
	for _, link := range found {
		if link != nil {
			links = append(links, *link)
		}
	}
	return links, nil
}

func newFuzzyLink(batchID string, a, b models.NormalizedRecord, decision similarity.MergeDecision, createdAt time.Time) models.MatchLink {
	meta := models.Metadata{
		"reason":         models.String(decision.Reason),
		"matched_fields": models.String(strings.Join(decision.Similarity.MatchedFields, ",")),
		"overall":        models.Number(decision.Similarity.Overall),
	}
	if score, ok := decision.Similarity.FieldScores[similarity.FieldName]; ok {
		meta.Set("name_score", models.Number(score))
	}
	return models.MatchLink{
		SourceID:  a.ID,
		TargetID:  b.ID,
		BatchID:   batchID,
		Method:    MethodFor(decision),
		Score:     decision.Confidence,
		Metadata:  meta,
		CreatedAt: createdAt,
	}
}

// MethodFor picks the most specific matched field: email, phone, organization, then name
func MethodFor(decision similarity.MergeDecision) models.MatchMethod {
	sim := decision.Similarity
	switch {
	case sim.Matched(similarity.FieldEmail):
		return models.MatchMethodFuzzyEmail
	case sim.Matched(similarity.FieldPhone):
		return models.MatchMethodFuzzyPhone
	case sim.Matched(similarity.FieldOrganization):
		return models.MatchMethodFuzzyOrganization
	default:
		return models.MatchMethodFuzzyName
	}
}
