package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Node labels and relationship types of the resolution graph
const (
	LabelSourceRecord = "SourceRecord"
	LabelGoldenRecord = "GoldenRecord"
	LabelCluster      = "MatchCluster"
	LabelBatch        = "Batch"

	RelMatches    = "MATCHES"
	RelMergedFrom = "MERGED_FROM"
	RelInCluster  = "IN_CLUSTER"
	RelInBatch    = "IN_BATCH"
)

var uniqueIDLabels = []string{LabelSourceRecord, LabelGoldenRecord, LabelCluster, LabelBatch}

var schemaExistsCodes = map[string]bool{
	"Neo.ClientError.Schema.ConstraintAlreadyExists":           true,
	"Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists": true,
	"Neo.ClientError.Schema.IndexAlreadyExists":                true,
	"Neo.ClientError.Schema.ConstraintWithNameAlreadyExists":   true,
	"Neo.ClientError.Schema.IndexWithNameAlreadyExists":        true,
}

// IsConstraintConflict reports whether err says a constraint or index already
// exists. Only schema creation may ignore it.
func IsConstraintConflict(err error) bool {
	if err == nil {
		return false
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return schemaExistsCodes[neoErr.Code]
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// IsUniquenessViolation reports whether a write was rolled back because a
// concurrent writer created a node with the same id first.
func IsUniquenessViolation(err error) bool {
	if err == nil {
		return false
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return neoErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint violation")
}

// EnsureSchema creates id uniqueness constraints for every node label.
// Existing constraints are tolerated.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	for _, label := range uniqueIDLabels {
		cypher := fmt.Sprintf("CREATE CONSTRAINT ON (n:%s) ASSERT n.id IS UNIQUE", label)
		if err := s.client.run(ctx, cypher, nil); err != nil {
			if IsConstraintConflict(err) {
				s.logger.WithContext(ctx).WithFields(map[string]any{"label": label}).Debug("Constraint already exists")
				continue
			}
			return fmt.Errorf("failed to create %s id constraint: %w", label, err)
		}
	}
	return nil
}
