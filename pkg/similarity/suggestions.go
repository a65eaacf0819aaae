package similarity

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// GenerateMergeSuggestions greedily groups records that should merge with an
// earlier, still unassigned record. Suggestions are ranked by descending
// confidence with ties kept in insertion order.
func (e *Engine) GenerateMergeSuggestions(records []models.NormalizedRecord) []models.MergeSuggestion {
	assigned := make([]bool, len(records))
	suggestions := []models.MergeSuggestion{}

	for i := range records {
		if assigned[i] {
			continue
		}

		var (
			candidates []string
			total      float64
			best       MergeDecision
		)
		for j := i + 1; j < len(records); j++ {
			if assigned[j] {
				continue
			}
			decision := e.ShouldMerge(records[i], records[j])
			if !decision.ShouldMerge {
				continue
			}
			assigned[j] = true
			candidates = append(candidates, records[j].ID)
			total += decision.Confidence
			if decision.Confidence > best.Confidence {
				best = decision
			}
		}

		if len(candidates) == 0 {
			continue
		}
		assigned[i] = true
		suggestions = append(suggestions, models.MergeSuggestion{
			PrimaryID:    records[i].ID,
			CandidateIDs: candidates,
			Confidence:   total / float64(len(candidates)),
			Reason:       best.Reason,
		})
	}

	sort.SliceStable(suggestions, func(a, b int) bool {
		return suggestions[a].Confidence > suggestions[b].Confidence
	})
	return suggestions
}
