package report

import (
	"strings"

	"github.com/srodi/cglens/pkg/metric"
	"github.com/srodi/cglens/pkg/types"
)

// RealtimeReport is the realtime allocation of a reference cgroup and its descendants.
type RealtimeReport struct {
	Reference types.RealtimeEntry
	// Entries are retained descendants sorted by percentage, trimmed to the requested limit.
	Entries []types.RealtimeEntry
	// HasReference is false when the reference cgroup has no realtime budget; the
	// aggregate fields below are then zero and meaningless.
	HasReference           bool
	TotalDirectChildrenPct float64
	ConsumedFraction       float64
	RemainingUs            float64
}

// BuildRealtimeReport sorts entries by percentage and aggregates the direct children of ref.
// Entry.Cgroup must be relative to the reference cgroup. A child's budget already covers
// its own descendants, so only direct children are summed.
func BuildRealtimeReport(ref types.RealtimeEntry, entries []types.RealtimeEntry, limit int) RealtimeReport {
	sorted := SortBy(entries, func(e types.RealtimeEntry) metric.Value {
		return metric.Value{Kind: metric.KindFloat, Float: e.Budget.Percentage(), Valid: true}
	})

	rep := RealtimeReport{
		Reference:    ref,
		Entries:      Limit(sorted, limit),
		HasReference: ref.Budget.Configured,
	}
	if !rep.HasReference {
		return rep
	}

	for _, e := range sorted {
		if isDirectChild(e.Cgroup) {
			rep.TotalDirectChildrenPct += e.Budget.Percentage()
		}
	}

	refPct := ref.Budget.Percentage()
	if refPct > 0 {
		rep.ConsumedFraction = rep.TotalDirectChildrenPct / refPct
	}
	remaining := (refPct - rep.TotalDirectChildrenPct) * (float64(ref.Budget.PeriodUs) / 100)
	if remaining < 0 {
		// repeated percentage arithmetic can drift just below zero
		remaining = 0
	}
	rep.RemainingUs = remaining
	return rep
}

func isDirectChild(relative string) bool {
	return strings.Count(relative, "/") == 1
}
