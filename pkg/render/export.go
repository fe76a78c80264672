package render

import (
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/srodi/cglens/pkg/metric"
	"github.com/srodi/cglens/pkg/report"
	"github.com/srodi/cglens/pkg/types"
)

// Snapshot is the structured form of one report, written as YAML or a Prometheus textfile.
type Snapshot struct {
	ID         string           `yaml:"id"`
	TakenAt    time.Time        `yaml:"taken_at"`
	Report     string           `yaml:"report"`
	Root       string           `yaml:"root"`
	Metric     string           `yaml:"metric,omitempty"`
	Processes  []ProcessRow     `yaml:"processes,omitempty"`
	Pressure   []PressureRow    `yaml:"pressure,omitempty"`
	Realtime   *RealtimeSection `yaml:"realtime,omitempty"`
	Tree       *TreeNode        `yaml:"tree,omitempty"`
	classifier *metric.Classifier
}

// ProcessRow is one retained process; Value is the sort metric as pidstat printed it.
type ProcessRow struct {
	PID     int    `yaml:"pid"`
	Command string `yaml:"command"`
	Cgroup  string `yaml:"cgroup"`
	Value   string `yaml:"value"`
}

// PressureRow holds the raw PSI fields of one cgroup keyed like some-avg10.
type PressureRow struct {
	Cgroup string            `yaml:"cgroup"`
	Fields map[string]string `yaml:"fields"`
}

// RealtimeRow is the realtime budget of one cgroup.
type RealtimeRow struct {
	Cgroup     string  `yaml:"cgroup"`
	RuntimeUs  int64   `yaml:"runtime_us"`
	PeriodUs   int64   `yaml:"period_us"`
	Percentage float64 `yaml:"percentage"`
}

// RealtimeSection is a realtime report. The totals are omitted when the reference cgroup
// has no budget configured.
type RealtimeSection struct {
	Reference              RealtimeRow   `yaml:"reference"`
	Configured             bool          `yaml:"configured"`
	TotalDirectChildrenPct float64       `yaml:"total_direct_children_pct,omitempty"`
	ConsumedFraction       float64       `yaml:"consumed_fraction,omitempty"`
	RemainingUs            float64       `yaml:"remaining_us,omitempty"`
	Entries                []RealtimeRow `yaml:"entries"`
}

// TreeNode mirrors a walked node and the metrics visitors attached to it.
type TreeNode struct {
	Name     string            `yaml:"name"`
	File     bool              `yaml:"file,omitempty"`
	Metrics  map[string]string `yaml:"metrics,omitempty"`
	Children []*TreeNode       `yaml:"children,omitempty"`
}

// NewSnapshot starts a snapshot of kind rooted at root.
func NewSnapshot(kind, root string, classifier *metric.Classifier) *Snapshot {
	return &Snapshot{
		ID:         uuid.NewString(),
		TakenAt:    time.Now().UTC(),
		Report:     kind,
		Root:       root,
		classifier: classifier,
	}
}

// WithProcesses records the process list for metricName.
func (s *Snapshot) WithProcesses(records []types.ProcessRecord, metricName string) *Snapshot {
	s.Metric = metricName
	for _, r := range records {
		s.Processes = append(s.Processes, ProcessRow{PID: r.PID, Command: r.Command, Cgroup: r.Cgroup, Value: r.Stats[metricName]})
	}
	return s
}

// WithPressure records the PSI rows; field is the sort field.
func (s *Snapshot) WithPressure(nodes []*types.Node, field string) *Snapshot {
	s.Metric = field
	for _, n := range nodes {
		s.Pressure = append(s.Pressure, PressureRow{Cgroup: types.RelativeName(s.Root, n.Path), Fields: n.Metrics})
	}
	return s
}

// WithRealtime records a realtime report.
func (s *Snapshot) WithRealtime(rep report.RealtimeReport) *Snapshot {
	section := &RealtimeSection{
		Reference:  realtimeRow(rep.Reference),
		Configured: rep.HasReference,
		Entries:    make([]RealtimeRow, 0, len(rep.Entries)),
	}
	if rep.HasReference {
		section.TotalDirectChildrenPct = rep.TotalDirectChildrenPct
		section.ConsumedFraction = rep.ConsumedFraction
		section.RemainingUs = rep.RemainingUs
	}
	for _, e := range rep.Entries {
		section.Entries = append(section.Entries, realtimeRow(e))
	}
	s.Realtime = section
	return s
}

// WithTree records the walked hierarchy.
func (s *Snapshot) WithTree(root *types.Node) *Snapshot {
	s.Tree = treeNode(root)
	return s
}

func realtimeRow(e types.RealtimeEntry) RealtimeRow {
	return RealtimeRow{
		Cgroup:     e.Cgroup,
		RuntimeUs:  e.Budget.RuntimeUs,
		PeriodUs:   e.Budget.PeriodUs,
		Percentage: e.Budget.Percentage(),
	}
}

func treeNode(n *types.Node) *TreeNode {
	t := &TreeNode{Name: n.Name, File: n.File}
	if len(n.Metrics) > 0 {
		t.Metrics = n.Metrics
	}
	for _, child := range n.Children {
		t.Children = append(t.Children, treeNode(child))
	}
	return t
}

// WriteYAML encodes the snapshot.
func (s *Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// WriteTextfile writes the snapshot in Prometheus text format for the node_exporter
// textfile collector.
func (s *Snapshot) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cglens",
		Name:      "snapshot_timestamp_seconds",
		Help:      "Unix time the snapshot was taken",
	}, []string{"report", "root"})
	process := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cglens",
		Name:      "process_metric",
		Help:      "pidstat metric of a process retained by the process list",
	}, []string{"pid", "command", "cgroup", "metric"})
	psi := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cglens",
		Name:      "psi",
		Help:      "Pressure stall information of a cgroup",
	}, []string{"cgroup", "field"})
	rtPct := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cglens",
		Name:      "rt_percentage",
		Help:      "Realtime runtime as a percentage of the period",
	}, []string{"cgroup"})
	rtRemaining := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cglens",
		Name:      "rt_remaining_us",
		Help:      "Realtime runtime still assignable to children of the reference cgroup",
	}, []string{"cgroup"})
	reg.MustRegister(info, process, psi, rtPct, rtRemaining)

	info.WithLabelValues(s.Report, s.Root).Set(float64(s.TakenAt.Unix()))
	for _, p := range s.Processes {
		v := s.classifier.Parse(s.Metric, p.Value)
		if v.Kind == metric.KindString || !v.Valid {
			continue
		}
		process.WithLabelValues(strconv.Itoa(p.PID), p.Command, p.Cgroup, s.Metric).Set(v.Number())
	}
	for _, row := range s.Pressure {
		for field, raw := range row.Fields {
			v := s.classifier.Parse(field, raw)
			if v.Kind == metric.KindString || !v.Valid {
				continue
			}
			psi.WithLabelValues(row.Cgroup, field).Set(v.Number())
		}
	}
	if s.Realtime != nil {
		for _, e := range s.Realtime.Entries {
			rtPct.WithLabelValues(e.Cgroup).Set(e.Percentage)
		}
		if s.Realtime.Configured {
			rtPct.WithLabelValues(s.Realtime.Reference.Cgroup).Set(s.Realtime.Reference.Percentage)
			rtRemaining.WithLabelValues(s.Realtime.Reference.Cgroup).Set(s.Realtime.RemainingUs)
		}
	}

	return prometheus.WriteToTextfile(path, reg)
}
