package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"k8s.io/klog/v2"

	"github.com/srodi/cglens/pkg/collector/cgroup"
	"github.com/srodi/cglens/pkg/metric"
	"github.com/srodi/cglens/pkg/render"
	"github.com/srodi/cglens/pkg/report"
	"github.com/srodi/cglens/pkg/types"
	"github.com/srodi/cglens/pkg/ui"
	"github.com/srodi/cglens/pkg/visit"
	"github.com/srodi/cglens/pkg/walker"
)

// environment is what a report touches outside the process.
type environment struct {
	fs    afero.Fs
	stats visit.StatSource
	out   io.Writer
	tty   bool
}

func run(ctx context.Context, cfg runConfig, env environment) error {
	mount := cfg.mount
	if mount == "" {
		controller := cfg.controller
		if controller == "" || cfg.version == cgroup.V2 {
			controller = "cpu"
		}
		resolved, err := cgroup.ResolveMount(env.fs, cfg.version, controller)
		if err != nil {
			return err
		}
		mount = resolved
	}

	opts := []walker.Option{walker.WithMaxDepth(cfg.depth)}
	if cfg.files {
		opts = append(opts, walker.WithFiles())
	}
	w := walker.New(env.fs, mount, cfg.cgroup, opts...)
	reader := cgroup.NewReader(env.fs)
	snap := render.NewSnapshot(cfg.command, w.Root(), metric.Default)

	var buf bytes.Buffer
	var err error
	switch cfg.command {
	case "tree":
		err = runTree(ctx, &buf, w, snap, cfg)
	case "list":
		err = runList(ctx, &buf, w, reader, env.stats, snap, cfg)
	case "psi-list":
		err = runPressureList(ctx, &buf, w, reader, snap, cfg)
	case "psi-tree":
		err = runPressureTree(ctx, &buf, w, reader, snap, cfg)
	case "rt-list":
		err = runRealtimeList(ctx, &buf, w, reader, snap, cfg)
	case "rt-tree":
		err = runRealtimeTree(ctx, &buf, w, reader, snap, cfg)
	default:
		err = fmt.Errorf("unknown command %q", cfg.command)
	}
	if err != nil {
		return err
	}

	if cfg.textfile != "" {
		if err := snap.WriteTextfile(cfg.textfile); err != nil {
			return fmt.Errorf("writing textfile %s: %w", cfg.textfile, err)
		}
	}
	if cfg.output == "yaml" {
		return snap.WriteYAML(env.out)
	}
	if env.tty {
		fmt.Fprint(env.out, ui.Banner())
	}
	_, err = env.out.Write(buf.Bytes())
	return err
}

func glyphs(cfg runConfig) render.Glyphs {
	if cfg.ascii {
		return render.ASCII
	}
	return render.Unicode
}

// valueLabel labels a node with its key metric, or just its name when the metric is absent.
func valueLabel(key, suffix string) render.LabelFunc {
	return func(n *types.Node) string {
		raw, ok := n.Metrics[key]
		if !ok {
			return n.BaseName()
		}
		return fmt.Sprintf("%s: %s%s", n.BaseName(), metric.Default.Parse(key, raw).Format(), suffix)
	}
}

func runTree(ctx context.Context, w io.Writer, wk *walker.Walker, snap *render.Snapshot, cfg runConfig) error {
	tree, err := wk.Walk(ctx, walker.LinkOnly)
	if err != nil {
		return err
	}
	snap.WithTree(tree.Root)
	return render.Tree(w, tree.Root, render.NameLabel, glyphs(cfg))
}

func runList(ctx context.Context, w io.Writer, wk *walker.Walker, reader *cgroup.Reader, stats visit.StatSource, snap *render.Snapshot, cfg runConfig) error {
	v := visit.NewProcessList(reader, stats, metric.Default, wk.Root(), cfg.metric, &cfg.threshold)
	if _, err := wk.Walk(ctx, v); err != nil {
		return err
	}

	records := report.ProcessFilter{HideKernelThreads: cfg.hideKernel, Cgroup: cfg.cgroupFilter}.Apply(v.Records())
	rows := report.ProcessRows(records, metric.Default, cfg.metric, cfg.limit)
	snap.WithProcesses(rows, cfg.metric)
	if len(rows) == 0 {
		_, err := fmt.Fprintf(w, "No processes with %s >= %g\n", cfg.metric, cfg.threshold)
		return err
	}
	return render.ProcessTable(w, rows, metric.Default, cfg.metric)
}

func pressureThreshold(cfg runConfig) *float64 {
	if cfg.threshold == 0 {
		return nil
	}
	return &cfg.threshold
}

func runPressureList(ctx context.Context, w io.Writer, wk *walker.Walker, reader *cgroup.Reader, snap *render.Snapshot, cfg runConfig) error {
	v := visit.NewPressure(reader, metric.Default, cfg.controller, cfg.field, pressureThreshold(cfg))
	if _, err := wk.Walk(ctx, v); err != nil {
		return err
	}

	rows := report.PressureRows(v.Nodes(), metric.Default, cfg.field, cfg.limit)
	snap.WithPressure(rows, cfg.field)
	return render.PressureTable(w, rows, metric.Default, cfg.field, wk.Root())
}

func runPressureTree(ctx context.Context, w io.Writer, wk *walker.Walker, reader *cgroup.Reader, snap *render.Snapshot, cfg runConfig) error {
	v := visit.NewPressure(reader, metric.Default, cfg.controller, cfg.field, nil)
	tree, err := wk.Walk(ctx, v)
	if err != nil {
		return err
	}
	if err := v.Attach(tree.Root); err != nil {
		return err
	}

	snap.WithPressure(append([]*types.Node{tree.Root}, v.Nodes()...), cfg.field).WithTree(tree.Root)
	fmt.Fprintf(w, "%s %s PSI data\n", cfg.controller, cfg.field)
	return render.Tree(w, tree.Root, valueLabel(cfg.field, ""), glyphs(cfg))
}

// walkRealtime returns the tree, the budget of its root and the configured descendants.
func walkRealtime(ctx context.Context, wk *walker.Walker, reader *cgroup.Reader, version cgroup.Version) (*walker.Tree, types.RealtimeEntry, []types.RealtimeEntry, error) {
	v := visit.NewRealtime(reader, wk.Root())
	tree, err := wk.Walk(ctx, v)
	if err != nil {
		return nil, types.RealtimeEntry{}, nil, err
	}
	budget, err := v.Attach(tree.Root)
	if err != nil {
		return nil, types.RealtimeEntry{}, nil, err
	}
	if !budget.Configured && version == cgroup.V2 {
		klog.Warningf("%s has no realtime budget; cpu.rt_* files are only exposed by the cgroup v1 cpu controller", tree.Root.Path)
	}
	ref := types.RealtimeEntry{Node: tree.Root, Cgroup: "/", Budget: budget}
	return tree, ref, v.Entries(), nil
}

func runRealtimeList(ctx context.Context, w io.Writer, wk *walker.Walker, reader *cgroup.Reader, snap *render.Snapshot, cfg runConfig) error {
	_, ref, entries, err := walkRealtime(ctx, wk, reader, cfg.version)
	if err != nil {
		return err
	}

	rep := report.BuildRealtimeReport(ref, entries, cfg.limit)
	snap.WithRealtime(rep)
	return render.RealtimeTable(w, rep)
}

func runRealtimeTree(ctx context.Context, w io.Writer, wk *walker.Walker, reader *cgroup.Reader, snap *render.Snapshot, cfg runConfig) error {
	tree, ref, entries, err := walkRealtime(ctx, wk, reader, cfg.version)
	if err != nil {
		return err
	}

	snap.WithRealtime(report.BuildRealtimeReport(ref, entries, 0)).WithTree(tree.Root)
	fmt.Fprintf(w, "Realtime allocation for %s\n", tree.Root.Name)
	return render.Tree(w, tree.Root, valueLabel(visit.PercentageKey, "%"), glyphs(cfg))
}
