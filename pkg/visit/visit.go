// Package visit holds the per-node visitors that attach metrics during a walk and decide
// which nodes or processes are retained for a report.
package visit

import (
	"context"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/srodi/cglens/pkg/metric"
	"github.com/srodi/cglens/pkg/types"
)

// PidReader lists processes attached to a cgroup.
type PidReader interface {
	Pids(path string) ([]int, error)
}

// StatSource samples per-process statistics.
type StatSource interface {
	Stat(ctx context.Context, pid int) (types.StatResult, error)
}

// PressureReader reads PSI fields of a cgroup.
type PressureReader interface {
	Pressure(path, controller string) (map[string]string, error)
}

// RealtimeReader reads a cgroup's realtime CPU settings.
type RealtimeReader interface {
	Realtime(path string) (types.RealtimeBudget, error)
}

// Metric keys attached to nodes by the realtime visitor.
const (
	RuntimeKey    = "cpu.rt_runtime_us"
	PeriodKey     = "cpu.rt_period_us"
	PercentageKey = "rt_percentage"
)

// ProcessList samples every process of each visited cgroup and keeps the ones whose
// metric passes the threshold.
type ProcessList struct {
	pids       PidReader
	stats      StatSource
	classifier *metric.Classifier
	root       string
	metric     string
	threshold  *float64

	records []types.ProcessRecord
}

// NewProcessList filters on metricName >= threshold; a nil threshold keeps every process.
// root is the walk root process cgroups are reported relative to.
func NewProcessList(pids PidReader, stats StatSource, classifier *metric.Classifier, root, metricName string, threshold *float64) *ProcessList {
	return &ProcessList{
		pids:       pids,
		stats:      stats,
		classifier: classifier,
		root:       root,
		metric:     metricName,
		threshold:  threshold,
	}
}

func (v *ProcessList) Visit(ctx context.Context, node *types.Node) error {
	pids, err := v.pids.Pids(node.Path)
	if err != nil {
		if types.IsTransient(err) {
			klog.V(2).Infof("dropping cgroup %s: %v", node.Path, err)
			return nil
		}
		return err
	}
	node.Metrics["nr_procs"] = strconv.Itoa(len(pids))

	cgroup := types.RelativeName(v.root, node.Path)
	for _, pid := range pids {
		res, err := v.stats.Stat(ctx, pid)
		if err != nil {
			if types.IsTransient(err) {
				klog.V(2).Infof("dropping pid %d: %v", pid, err)
				continue
			}
			return err
		}
		if !res.Found {
			klog.V(2).Infof("pid %d in %s exited before it was sampled", pid, cgroup)
			continue
		}

		record := res.Record
		record.Cgroup = cgroup
		if v.classifier.Parse(v.metric, record.Stats[v.metric]).AtLeast(v.threshold) {
			v.records = append(v.records, record)
		}
	}
	return nil
}

// Records returns retained processes in visit order.
func (v *ProcessList) Records() []types.ProcessRecord { return v.records }

// Pressure attaches PSI fields of one controller to each node and keeps nodes whose field
// passes the threshold.
type Pressure struct {
	reader     PressureReader
	classifier *metric.Classifier
	controller string
	field      string
	threshold  *float64

	nodes []*types.Node
}

// NewPressure keeps every node when threshold is nil.
func NewPressure(reader PressureReader, classifier *metric.Classifier, controller, field string, threshold *float64) *Pressure {
	return &Pressure{
		reader:     reader,
		classifier: classifier,
		controller: controller,
		field:      field,
		threshold:  threshold,
	}
}

// Attach reads PSI for node without retaining it; used for the walk root.
func (v *Pressure) Attach(node *types.Node) error {
	psi, err := v.reader.Pressure(node.Path, v.controller)
	if err != nil {
		return err
	}
	for k, val := range psi {
		node.Metrics[k] = val
	}
	return nil
}

func (v *Pressure) Visit(_ context.Context, node *types.Node) error {
	if err := v.Attach(node); err != nil {
		if types.IsTransient(err) {
			klog.V(2).Infof("dropping cgroup %s: %v", node.Path, err)
			return nil
		}
		return err
	}
	if v.classifier.Parse(v.field, node.Metrics[v.field]).AtLeast(v.threshold) {
		v.nodes = append(v.nodes, node)
	}
	return nil
}

// Nodes returns retained nodes in visit order.
func (v *Pressure) Nodes() []*types.Node { return v.nodes }

// Realtime reads realtime budgets and keeps nodes with a configured runtime.
type Realtime struct {
	reader RealtimeReader
	root   string

	entries []types.RealtimeEntry
}

// NewRealtime reports cgroups relative to root.
func NewRealtime(reader RealtimeReader, root string) *Realtime {
	return &Realtime{reader: reader, root: root}
}

// Attach reads and records the budget of node without retaining it.
func (v *Realtime) Attach(node *types.Node) (types.RealtimeBudget, error) {
	budget, err := v.reader.Realtime(node.Path)
	if err != nil {
		return types.RealtimeBudget{}, err
	}
	if budget.Configured {
		node.Metrics[RuntimeKey] = strconv.FormatInt(budget.RuntimeUs, 10)
		node.Metrics[PeriodKey] = strconv.FormatInt(budget.PeriodUs, 10)
		node.Metrics[PercentageKey] = strconv.FormatFloat(budget.Percentage(), 'f', -1, 64)
	}
	return budget, nil
}

func (v *Realtime) Visit(_ context.Context, node *types.Node) error {
	budget, err := v.Attach(node)
	if err != nil {
		if types.IsTransient(err) {
			klog.V(2).Infof("dropping cgroup %s: %v", node.Path, err)
			return nil
		}
		return err
	}
	if !budget.Configured {
		return nil
	}
	v.entries = append(v.entries, types.RealtimeEntry{
		Node:   node,
		Cgroup: types.RelativeName(v.root, node.Path),
		Budget: budget,
	})
	return nil
}

// Entries returns retained nodes in visit order.
func (v *Realtime) Entries() []types.RealtimeEntry { return v.entries }
