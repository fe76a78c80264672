package report

import (
	"sort"

	"github.com/srodi/cglens/pkg/metric"
	"github.com/srodi/cglens/pkg/types"
)

// Sort orders records descending by the metric key returns, compared as kind. Records with
// equal keys keep their visit order. The input slice is not modified.
func Sort[T any](records []T, kind metric.Kind, key func(T) string) []T {
	return SortBy(records, func(r T) metric.Value {
		return metric.Parse(kind, key(r))
	})
}

// SortBy is Sort for callers that already hold typed values.
func SortBy[T any](records []T, value func(T) metric.Value) []T {
	type keyed struct {
		value  metric.Value
		record T
	}
	rows := make([]keyed, len(records))
	for i, r := range records {
		rows[i] = keyed{value: value(r), record: r}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return metric.Compare(rows[i].value, rows[j].value) > 0
	})

	sorted := make([]T, len(rows))
	for i, row := range rows {
		sorted[i] = row.record
	}
	return sorted
}

// Limit returns the first n records, or all of them when n <= 0.
func Limit[T any](records []T, n int) []T {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}

// ProcessRows sorts process records by metricName and trims them to limit.
func ProcessRows(records []types.ProcessRecord, classifier *metric.Classifier, metricName string, limit int) []types.ProcessRecord {
	sorted := Sort(records, classifier.Kind(metricName), func(r types.ProcessRecord) string {
		return r.Stats[metricName]
	})
	return Limit(sorted, limit)
}

// PressureRows sorts nodes by a PSI field and trims them to limit.
func PressureRows(nodes []*types.Node, classifier *metric.Classifier, field string, limit int) []*types.Node {
	sorted := Sort(nodes, classifier.Kind(field), func(n *types.Node) string {
		return n.Metrics[field]
	})
	return Limit(sorted, limit)
}
