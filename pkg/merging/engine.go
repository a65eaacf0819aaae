// Package merging synthesizes golden records from match clusters
package merging

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultMergeDiscount scales the mean link score of a merged cluster
const DefaultMergeDiscount = 0.8

// Config contains configuration for golden record synthesis
type Config struct {
	MergeDiscount float64 // Applied to the mean link score of multi-record clusters (default: 0.8)
}

// DefaultConfig returns default synthesis configuration
func DefaultConfig() Config {
	return Config{MergeDiscount: DefaultMergeDiscount}
}

// Engine builds one GoldenRecord per MatchCluster
type Engine struct {
	logger      ectologger.Logger
	fieldMerger *FieldMerger
	config      Config
	now         func() time.Time
}

// NewEngine creates a new golden record engine
func NewEngine(logger ectologger.Logger, config Config) *Engine {
	if config.MergeDiscount <= 0 || config.MergeDiscount > 1 {
		config.MergeDiscount = DefaultMergeDiscount
	}
	return &Engine{
		logger:      logger,
		fieldMerger: NewFieldMerger(),
		config:      config,
		now:         time.Now,
	}
}

// Synthesize merges every cluster into a golden record, in cluster order
func (e *Engine) Synthesize(ctx context.Context, clusters []models.MatchCluster, records []models.NormalizedRecord) ([]models.GoldenRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Synthesize")
	defer span.End()

	byID := make(map[string]models.NormalizedRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	golden := make([]models.GoldenRecord, 0, len(clusters))
	for _, cluster := range clusters {
		g, err := e.Merge(cluster, byID)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		golden = append(golden, g)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"cluster_count": len(clusters),
		"golden_count":  len(golden),
	}).Info("Golden records synthesized")
	return golden, nil
}

// Merge builds the golden record of one cluster. The first member in encounter
// order seeds the name and organization fields; contact fields are unioned.
func (e *Engine) Merge(cluster models.MatchCluster, byID map[string]models.NormalizedRecord) (models.GoldenRecord, error) {
	if len(cluster.RecordIDs) == 0 {
		return models.GoldenRecord{}, fmt.Errorf("cluster %s has no records", cluster.ID)
	}

	members := make([]models.NormalizedRecord, 0, len(cluster.RecordIDs))
	for _, id := range cluster.RecordIDs {
		rec, ok := byID[id]
		if !ok {
			return models.GoldenRecord{}, fmt.Errorf("cluster %s references unknown record %s", cluster.ID, id)
		}
		members = append(members, rec)
	}
	rep := members[0]

	var emails, phones, addresses, batchIDs, sources []string
	for _, m := range members {
		emails = append(emails, m.Email)
		phones = append(phones, m.Phone)
		addresses = append(addresses, m.Address)
		batchIDs = append(batchIDs, m.BatchID)
		sources = append(sources, m.Source)
	}

	sortedIDs := append([]string(nil), cluster.RecordIDs...)
	sort.Strings(sortedIDs)

	now := e.now().UTC()
	g := models.GoldenRecord{
		ID:               models.NameID(append([]string{"golden"}, sortedIDs...)...),
		ClusterID:        cluster.ID,
		NaturalKey:       rep.NaturalKey,
		Name:             rep.Name,
		Emails:           e.fieldMerger.Union(emails),
		Phones:           e.fieldMerger.Union(phones),
		Addresses:        e.fieldMerger.Union(addresses),
		OrganizationName: rep.OrganizationName,
		OrganizationID:   rep.OrganizationID,
		SourceRecordIDs:  append([]string(nil), cluster.RecordIDs...),
		BatchIDs:         e.fieldMerger.Union(batchIDs),
		Sources:          e.fieldMerger.Union(sources),
		Confidence:       e.Confidence(cluster),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	g.Fingerprint = Fingerprint(g)
	return g, nil
}

// Confidence is 1.0 for a singleton, otherwise MergeDiscount times the mean link score
func (e *Engine) Confidence(cluster models.MatchCluster) float64 {
	if len(cluster.RecordIDs) <= 1 {
		return 1.0
	}
	scores := make([]float64, 0, len(cluster.Links))
	for _, l := range cluster.Links {
		scores = append(scores, l.Score)
	}
	mean := 1.0
	if len(scores) > 0 {
		mean = e.fieldMerger.Mean(scores)
	}
	return math.Round(e.config.MergeDiscount*mean*1e6) / 1e6
}

// Fingerprint hashes the merged content of a golden record, excluding ids and timestamps
func Fingerprint(g models.GoldenRecord) string {
	return fingerprint.Generate(map[string]any{
		"natural_key":       g.NaturalKey,
		"name":              g.Name,
		"emails":            g.Emails,
		"phones":            g.Phones,
		"addresses":         g.Addresses,
		"organization_name": g.OrganizationName,
		"organization_id":   g.OrganizationID,
		"source_record_ids": g.SourceRecordIDs,
	})
}
