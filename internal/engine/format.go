package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lewisedginton/memory_engine/internal/memory_graph"
	"github.com/lewisedginton/memory_engine/internal/rollover"
)

func sortSummaries(recs []*rollover.SummaryRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
}

// FormatSummaries renders one line per summary.
func FormatSummaries(recs []*rollover.SummaryRecord, now time.Time) string {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("//Summary of our conversation from %s: %s",
			memory_graph.Relative(r.CreatedAt, now), r.SummaryText))
	}
	return strings.Join(lines, "\n")
}
