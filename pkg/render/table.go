package render

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/srodi/cglens/pkg/metric"
	"github.com/srodi/cglens/pkg/report"
	"github.com/srodi/cglens/pkg/types"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// ProcessTable prints one row per process with the chosen metric formatted by its kind.
func ProcessTable(w io.Writer, records []types.ProcessRecord, classifier *metric.Classifier, metricName string) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "PID\tCOMMAND\t%s\tCGROUP\n", metricName)
	for _, r := range records {
		value := classifier.Parse(metricName, r.Stats[metricName])
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.PID, r.Command, value.Format(), r.Cgroup)
	}
	return tw.Flush()
}

// PressureTable prints PSI rows with cgroups relative to root.
func PressureTable(w io.Writer, nodes []*types.Node, classifier *metric.Classifier, field, root string) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "%s PSI\tCGROUP\n", field)
	for _, n := range nodes {
		value := classifier.Parse(field, n.Metrics[field])
		fmt.Fprintf(tw, "%s\t%s\n", value.Format(), types.RelativeName(root, n.Path))
	}
	return tw.Flush()
}

// RealtimeTable prints realtime rows followed by the reference cgroup's allocation summary.
func RealtimeTable(w io.Writer, rep report.RealtimeReport) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "RUNTIME(us)\tPERIOD(us)\tPCT\tCGROUP")
	for _, e := range rep.Entries {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%s\n", e.Budget.RuntimeUs, e.Budget.PeriodUs, e.Budget.Percentage(), e.Cgroup)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !rep.HasReference {
		_, err := fmt.Fprintf(w, "\n%s has no realtime budget; allocation summary unavailable\n", rep.Reference.Cgroup)
		return err
	}
	ref := rep.Reference.Budget
	_, err := fmt.Fprintf(w, "\n%s: %.2f%% (%d/%d us)\nAssigned to children: %.2f%% (%.1f%% of parent)\nRemaining assignable runtime: %.0f us\n",
		rep.Reference.Cgroup, ref.Percentage(), ref.RuntimeUs, ref.PeriodUs,
		rep.TotalDirectChildrenPct, rep.ConsumedFraction*100, rep.RemainingUs)
	return err
}
