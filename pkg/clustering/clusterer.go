// Package clustering groups matched records into connected components
package clustering

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/similarity"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultMaxSuggestionSize caps the cluster size that receives merge suggestions
const DefaultMaxSuggestionSize = 50

// Clusterer computes connected components over a batch's match graph
type Clusterer struct {
	logger            ectologger.Logger
	similarity        *similarity.Engine
	maxSuggestionSize int
	now               func() time.Time
}

// NewClusterer creates a Clusterer. A nil similarity engine disables merge suggestions.
func NewClusterer(logger ectologger.Logger, sim *similarity.Engine) *Clusterer {
	return &Clusterer{
		logger:            logger,
		similarity:        sim,
		maxSuggestionSize: DefaultMaxSuggestionSize,
		now:               time.Now,
	}
}

// Cluster partitions records into clusters. Every record lands in exactly one
// cluster and each cluster keeps exactly the links whose endpoints it contains.
// Clusters are ordered by their earliest record; members keep input order.
func (c *Clusterer) Cluster(ctx context.Context, batchID string, records []models.NormalizedRecord, links []models.MatchLink) []models.MatchCluster {
	ctx, span := tracing.StartSpan(ctx, "clustering.Clusterer.Cluster")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   batchID,
		"records":    len(records),
		"link_count": len(links),
	})

	index := make(map[string]int, len(records))
	for i, rec := range records {
		index[rec.ID] = i
	}

	adjacency := make([][]int, len(records))
	valid := make([]bool, len(links))
	for k, link := range links {
		a, okA := index[link.SourceID]
		b, okB := index[link.TargetID]
		if !okA || !okB {
			log.WithFields(map[string]any{
				"source_id": link.SourceID,
				"target_id": link.TargetID,
			}).Warn("Ignoring match link with unknown endpoint")
			continue
		}
		valid[k] = true
		adjacency[a] = append(adjacency[a], b)
		adjacency[b] = append(adjacency[b], a)
	}

	component := make([]int, len(records))
	for i := range component {
		component[i] = -1
	}

	var members [][]int
	stack := make([]int, 0)
	for start := range records {
		if component[start] >= 0 {
			continue
		}
		id := len(members)
		component[start] = id
		group := []int{}
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			group = append(group, n)
			for _, next := range adjacency[n] {
				if component[next] < 0 {
					component[next] = id
					stack = append(stack, next)
				}
			}
		}
		sort.Ints(group)
		members = append(members, group)
	}

	createdAt := c.now().UTC()
	clusters := make([]models.MatchCluster, len(members))
	for id, group := range members {
		ids := make([]string, len(group))
		for i, idx := range group {
			ids[i] = records[idx].ID
		}
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)

		cluster := models.MatchCluster{
			ID:        models.NameID(append([]string{"cluster", batchID}, sorted...)...),
			BatchID:   batchID,
			RecordIDs: ids,
			Links:     []models.MatchLink{},
			Status:    models.ClusterStatusPending,
			CreatedAt: createdAt,
		}
		if len(group) == 1 {
			cluster.Status = models.ClusterStatusResolved
		}
		clusters[id] = cluster
	}

	for k, link := range links {
		if !valid[k] {
			continue
		}
		id := component[index[link.SourceID]]
		clusters[id].Links = append(clusters[id].Links, link)
	}

	if c.similarity != nil {
		for id, group := range members {
			if len(group) < 2 || len(group) > c.maxSuggestionSize {
				continue
			}
			recs := make([]models.NormalizedRecord, len(group))
			for i, idx := range group {
				recs[i] = records[idx]
			}
			clusters[id].SuggestedMerges = c.similarity.GenerateMergeSuggestions(recs)
		}
	}

	log.WithFields(map[string]any{"cluster_count": len(clusters)}).Info("Clustering complete")
	return clusters
}
