package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// writeChunkSize bounds the rows sent in one UNWIND
const writeChunkSize = 500

type statement struct {
	cypher string
	params map[string]any
}

// Store writes batches, source records, links, clusters and golden records.
// Every write is a MERGE keyed on id so re-ingesting a batch is idempotent.
type Store struct {
	client *Client
	runner Runner
	logger ectologger.Logger
}

// NewStore creates a graph store
func NewStore(client *Client, logger ectologger.Logger) *Store {
	return &Store{
		client: client,
		runner: client,
		logger: logger,
	}
}

// SaveBatch creates or updates the Batch node. created_at is only set once.
func (s *Store) SaveBatch(ctx context.Context, batch *models.BatchMeta) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Store.SaveBatch")
	defer span.End()

	return s.write(ctx, "batch", batch.ID, []statement{batchStatement(*batch)})
}

// SaveSourceRecords writes normalized records and links them to their batch
func (s *Store) SaveSourceRecords(ctx context.Context, batchID string, records []models.NormalizedRecord) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Store.SaveSourceRecords")
	defer span.End()

	return s.write(ctx, "source records", batchID, sourceRecordStatements(batchID, records))
}

// SaveMatchLinks writes one MATCHES edge per link and batch
func (s *Store) SaveMatchLinks(ctx context.Context, batchID string, links []models.MatchLink) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Store.SaveMatchLinks")
	defer span.End()

	return s.write(ctx, "match links", batchID, matchLinkStatements(links))
}

// SaveClusters writes cluster nodes and IN_CLUSTER membership edges
func (s *Store) SaveClusters(ctx context.Context, batchID string, clusters []models.MatchCluster) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Store.SaveClusters")
	defer span.End()

	return s.write(ctx, "clusters", batchID, clusterStatements(clusters))
}

// SaveGoldenRecords writes golden records and MERGED_FROM provenance edges
func (s *Store) SaveGoldenRecords(ctx context.Context, batchID string, golden []models.GoldenRecord) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Store.SaveGoldenRecords")
	defer span.End()

	return s.write(ctx, "golden records", batchID, goldenRecordStatements(golden))
}

// write runs statements in one transaction. A uniqueness violation rolls the
// whole transaction back; it is retried once because the MERGE then matches
// the node the other writer created.
func (s *Store) write(ctx context.Context, what, batchID string, statements []statement) error {
	if len(statements) == 0 {
		return nil
	}
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   batchID,
		"statements": len(statements),
	})

	err := s.execute(ctx, statements)
	if IsUniquenessViolation(err) {
		log.WithError(err).Warnf("Uniqueness violation writing %s, retrying", what)
		err = s.execute(ctx, statements)
	}
	if err != nil {
		log.WithError(err).Errorf("Failed to write %s to graph", what)
		return fmt.Errorf("failed to write %s: %w", what, err)
	}

	log.Debugf("Wrote %s to graph", what)
	return nil
}

func (s *Store) execute(ctx context.Context, statements []statement) error {
	_, err := s.runner.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range statements {
			result, err := tx.Run(ctx, st.cypher, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func batchStatement(b models.BatchMeta) statement {
	return statement{
		cypher: `
			MERGE (b:Batch {id: $id})
			ON CREATE SET b.created_at = $created_at
			SET b += $props
		`,
		params: map[string]any{
			"id":         b.ID,
			"created_at": formatTime(b.CreatedAt),
			"props":      batchProps(b),
		},
	}
}

func sourceRecordStatements(batchID string, records []models.NormalizedRecord) []statement {
	rows := make([]any, len(records))
	for i, r := range records {
		rows[i] = sourceRecordProps(r)
	}
	return chunk(rows, func(part []any) statement {
		return statement{
			cypher: `
				UNWIND $records AS props
				MERGE (r:SourceRecord {id: props.id})
				SET r += props
				WITH r
				MATCH (b:Batch {id: $batch_id})
				MERGE (r)-[:IN_BATCH]->(b)
			`,
			params: map[string]any{"records": part, "batch_id": batchID},
		}
	})
}

func matchLinkStatements(links []models.MatchLink) []statement {
	rows := make([]any, len(links))
	for i, l := range links {
		rows[i] = matchLinkProps(l)
	}
	return chunk(rows, func(part []any) statement {
		return statement{
			cypher: `
				UNWIND $links AS link
				MATCH (a:SourceRecord {id: link.source_id})
				MATCH (b:SourceRecord {id: link.target_id})
				MERGE (a)-[m:MATCHES {batch_id: link.batch_id}]->(b)
				SET m.method = link.method,
					m.score = link.score,
					m.metadata = link.metadata,
					m.created_at = link.created_at
			`,
			params: map[string]any{"links": part},
		}
	})
}

func clusterStatements(clusters []models.MatchCluster) []statement {
	rows := make([]any, len(clusters))
	for i, c := range clusters {
		rows[i] = clusterProps(c)
	}
	return chunk(rows, func(part []any) statement {
		return statement{
			cypher: `
				UNWIND $clusters AS props
				MERGE (c:MatchCluster {id: props.id})
				SET c += props
				WITH c, props
				UNWIND props.record_ids AS record_id
				MATCH (r:SourceRecord {id: record_id})
				MERGE (r)-[:IN_CLUSTER]->(c)
			`,
			params: map[string]any{"clusters": part},
		}
	})
}

func goldenRecordStatements(golden []models.GoldenRecord) []statement {
	rows := make([]any, len(golden))
	for i, g := range golden {
		rows[i] = map[string]any{
			"props":      goldenRecordProps(g),
			"created_at": formatTime(g.CreatedAt),
		}
	}
	return chunk(rows, func(part []any) statement {
		return statement{
			cypher: `
				UNWIND $golden AS row
				MERGE (g:GoldenRecord {id: row.props.id})
				ON CREATE SET g.created_at = row.created_at
				SET g += row.props
				WITH g, row
				UNWIND row.props.source_record_ids AS record_id
				MATCH (r:SourceRecord {id: record_id})
				MERGE (g)-[:MERGED_FROM]->(r)
			`,
			params: map[string]any{"golden": part},
		}
	})
}

func chunk(rows []any, build func([]any) statement) []statement {
	var out []statement
	for start := 0; start < len(rows); start += writeChunkSize {
		end := min(start+writeChunkSize, len(rows))
		out = append(out, build(rows[start:end]))
	}
	return out
}
