package graph

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// QueryService serves the paginated read side of the resolution graph
type QueryService struct {
	runner Runner
	logger ectologger.Logger
}

// NewQueryService creates a new query service
func NewQueryService(client *Client, logger ectologger.Logger) *QueryService {
	return &QueryService{
		runner: client,
		logger: logger,
	}
}

type page struct {
	total int
	nodes []map[string]any
}

// ListGoldenRecords returns golden records ordered by name. search matches a
// case-insensitive substring of the name, an email or the natural key.
func (s *QueryService) ListGoldenRecords(ctx context.Context, p models.Pagination, search string) (*models.GoldenRecordListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ListGoldenRecords")
	defer span.End()

	p = p.Normalize()
	where := `WHERE $search = ''
		OR toLower(g.name) CONTAINS $search
		OR toLower(g.natural_key) CONTAINS $search
		OR any(email IN g.emails WHERE email CONTAINS $search)`
	params := map[string]any{"search": strings.ToLower(strings.TrimSpace(search))}

	res, err := s.list(ctx, "MATCH (g:GoldenRecord) "+where, "g", "g.name ASC, g.id ASC", p, params)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list golden records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list golden records")
	}

	items := make([]models.GoldenRecord, len(res.nodes))
	for i, props := range res.nodes {
		items[i] = goldenRecordFromProps(props)
	}
	return &models.GoldenRecordListResponse{Items: items, TotalCount: res.total, Page: p.Page, PageSize: p.PageSize}, nil
}

// GetGoldenRecord returns one golden record by id
func (s *QueryService) GetGoldenRecord(ctx context.Context, id string) (*models.GoldenRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.GetGoldenRecord")
	defer span.End()

	props, err := s.get(ctx, "MATCH (n:GoldenRecord {id: $id}) RETURN n", id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to get golden record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get golden record")
	}
	if props == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("golden record %s not found", id))
	}
	g := goldenRecordFromProps(props)
	return &g, nil
}

// ListClusters returns clusters newest first, optionally filtered by status
func (s *QueryService) ListClusters(ctx context.Context, p models.Pagination, status models.ClusterStatus) (*models.MatchClusterListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ListClusters")
	defer span.End()

	p = p.Normalize()
	params := map[string]any{"status": string(status)}
	res, err := s.list(ctx, "MATCH (c:MatchCluster) WHERE $status = '' OR c.status = $status", "c", "c.created_at DESC, c.id ASC", p, params)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list clusters")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list clusters")
	}

	items := make([]models.MatchCluster, len(res.nodes))
	for i, props := range res.nodes {
		items[i] = clusterFromProps(props)
	}
	return &models.MatchClusterListResponse{Items: items, TotalCount: res.total, Page: p.Page, PageSize: p.PageSize}, nil
}

// ListBatches returns batches newest first
func (s *QueryService) ListBatches(ctx context.Context, p models.Pagination) (*models.BatchMetaListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ListBatches")
	defer span.End()

	p = p.Normalize()
	res, err := s.list(ctx, "MATCH (b:Batch)", "b", "b.created_at DESC, b.id ASC", p, map[string]any{})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list batches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list batches")
	}

	items := make([]models.BatchMeta, len(res.nodes))
	for i, props := range res.nodes {
		items[i] = batchFromProps(props)
	}
	return &models.BatchMetaListResponse{Items: items, TotalCount: res.total, Page: p.Page, PageSize: p.PageSize}, nil
}

// GetBatch returns one batch by id
func (s *QueryService) GetBatch(ctx context.Context, id string) (*models.BatchMeta, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.GetBatch")
	defer span.End()

	props, err := s.get(ctx, "MATCH (n:Batch {id: $id}) RETURN n", id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to get batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get batch")
	}
	if props == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("batch %s not found", id))
	}
	b := batchFromProps(props)
	return &b, nil
}

// ListMatchLinks returns every MATCHES edge written for a batch
func (s *QueryService) ListMatchLinks(ctx context.Context, batchID string) ([]models.MatchLink, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.QueryService.ListMatchLinks")
	defer span.End()

	cypher := `
		MATCH (a:SourceRecord)-[m:MATCHES {batch_id: $batch_id}]->(b:SourceRecord)
		RETURN a.id AS source_id, b.id AS target_id, m
		ORDER BY source_id, target_id
	`
	res, err := s.runner.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"batch_id": batchID})
		if err != nil {
			return nil, err
		}
		links := []models.MatchLink{}
		for result.Next(ctx) {
			record := result.Record()
			sourceID, _ := record.Get("source_id")
			targetID, _ := record.Get("target_id")
			rel, _ := record.Get("m")
			r, ok := rel.(neo4j.Relationship)
			if !ok {
				continue
			}
			src, _ := sourceID.(string)
			dst, _ := targetID.(string)
			links = append(links, matchLinkFromProps(src, dst, r.Props))
		}
		return links, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_id": batchID}).Error("Failed to list match links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match links")
	}
	return res.([]models.MatchLink), nil
}

// list counts the matches of match and returns one ordered page of the node bound to alias
func (s *QueryService) list(ctx context.Context, match, alias, orderBy string, p models.Pagination, params map[string]any) (*page, error) {
	params["skip"] = int64(p.Offset())
	params["limit"] = int64(p.PageSize)
	countCypher := fmt.Sprintf("%s RETURN count(%s) AS total", match, alias)
	pageCypher := fmt.Sprintf("%s RETURN %s ORDER BY %s SKIP $skip LIMIT $limit", match, alias, orderBy)

	res, err := s.runner.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out := &page{nodes: []map[string]any{}}

		countResult, err := tx.Run(ctx, countCypher, params)
		if err != nil {
			return nil, err
		}
		if countResult.Next(ctx) {
			total, _ := countResult.Record().Get("total")
			if n, ok := total.(int64); ok {
				out.total = int(n)
			}
		}

		pageResult, err := tx.Run(ctx, pageCypher, params)
		if err != nil {
			return nil, err
		}
		for pageResult.Next(ctx) {
			value, _ := pageResult.Record().Get(alias)
			if node, ok := value.(neo4j.Node); ok {
				out.nodes = append(out.nodes, node.Props)
			}
		}
		return out, pageResult.Err()
	})
	if err != nil {
		return nil, err
	}
	return res.(*page), nil
}

func (s *QueryService) get(ctx context.Context, cypher, id string) (map[string]any, error) {
	res, err := s.runner.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, result.Err()
		}
		value, _ := result.Record().Get("n")
		node, ok := value.(neo4j.Node)
		if !ok {
			return nil, nil
		}
		return node.Props, nil
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.(map[string]any), nil
}
