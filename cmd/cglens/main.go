package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"golang.org/x/term"
	"k8s.io/klog/v2"

	"github.com/srodi/cglens/pkg/collector/cgroup"
	"github.com/srodi/cglens/pkg/collector/pidstat"
	"github.com/srodi/cglens/pkg/config"
)

var commands = map[string]string{
	"tree":     "print the cgroup hierarchy",
	"list":     "list processes whose pidstat metric meets a threshold",
	"psi-list": "list cgroups by a pressure stall field",
	"psi-tree": "print the hierarchy labelled with a pressure stall field",
	"rt-list":  "list realtime CPU budgets and the remaining assignable runtime",
	"rt-tree":  "print the hierarchy labelled with realtime CPU percentages",
}

type runConfig struct {
	command string

	cgroup  string
	depth   int
	version cgroup.Version
	mount   string
	pidstat string

	metric     string
	threshold  float64
	limit      int
	controller string
	field      string

	hideKernel   bool
	cgroupFilter string

	ascii    bool
	files    bool
	output   string
	textfile string
}

// flagSet registers long flags with an optional one-letter alias.
type flagSet struct {
	*flag.FlagSet
	aliases map[string]string
}

func (fs *flagSet) stringVar(p *string, short, long, value, usage string) {
	fs.StringVar(p, long, value, usage)
	fs.alias(short, long, func() { fs.StringVar(p, short, value, "shorthand for --"+long) })
}

func (fs *flagSet) intVar(p *int, short, long string, value int, usage string) {
	fs.IntVar(p, long, value, usage)
	fs.alias(short, long, func() { fs.IntVar(p, short, value, "shorthand for --"+long) })
}

func (fs *flagSet) floatVar(p *float64, short, long string, value float64, usage string) {
	fs.Float64Var(p, long, value, usage)
	fs.alias(short, long, func() { fs.Float64Var(p, short, value, "shorthand for --"+long) })
}

func (fs *flagSet) alias(short, long string, register func()) {
	if short == "" {
		return
	}
	register()
	fs.aliases[short] = long
}

// explicit returns the long names of flags present on the command line.
func (fs *flagSet) explicit() map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := fs.aliases[name]; ok {
			name = long
		}
		set[name] = true
	})
	return set
}

func parseConfig(fsys afero.Fs, args []string, stderr io.Writer) (runConfig, error) {
	if len(args) == 0 {
		usage(stderr)
		return runConfig{}, errors.New("missing command")
	}
	cfg := runConfig{command: args[0]}
	if _, ok := commands[cfg.command]; !ok {
		if cfg.command == "-h" || cfg.command == "--help" || cfg.command == "help" {
			usage(stderr)
			return runConfig{}, flag.ErrHelp
		}
		usage(stderr)
		return runConfig{}, fmt.Errorf("unknown command %q", cfg.command)
	}

	def := config.Defaults()
	fs := &flagSet{FlagSet: flag.NewFlagSet(cfg.command, flag.ContinueOnError), aliases: map[string]string{}}
	fs.SetOutput(stderr)
	klog.InitFlags(fs.FlagSet)

	var configPath, version string
	fs.stringVar(&cfg.cgroup, "C", "cgroup", "/", "cgroup to start from, relative to the mount (e.g. machine.slice/foo.scope)")
	fs.intVar(&cfg.depth, "d", "depth", def.Depth, "levels to descend below the cgroup; 0 == only this cgroup, negative == unbounded")
	fs.stringVar(&configPath, "", "config", "", "YAML file with defaults (or $"+config.EnvConfig+")")
	fs.stringVar(&version, "", "cgroup-version", def.Version, "cgroup hierarchy version: v1 or v2 (default v1 for rt-* reports, v2 otherwise)")
	fs.stringVar(&cfg.mount, "", "mount", def.Mount, "cgroup mount point; resolved from /proc/self/mounts when empty")
	fs.stringVar(&cfg.output, "o", "output", "table", "output format: table or yaml")
	fs.stringVar(&cfg.textfile, "", "textfile", def.Textfile, "also write the report in Prometheus text format to this file")

	switch cfg.command {
	case "tree", "psi-tree", "rt-tree":
		fs.BoolVar(&cfg.ascii, "ascii", def.ASCII, "draw the tree with ASCII glyphs")
	}
	if cfg.command == "tree" {
		fs.BoolVar(&cfg.files, "files", false, "show control files as leaves of each cgroup")
	}
	switch cfg.command {
	case "list":
		fs.stringVar(&cfg.metric, "m", "metric", def.Metric, "pidstat metric to filter and sort by")
		fs.floatVar(&cfg.threshold, "t", "threshold", def.Threshold, "minimum metric value")
		fs.stringVar(&cfg.pidstat, "", "pidstat", def.Pidstat, "pidstat binary (or $"+config.EnvPidstat+")")
		fs.BoolVar(&cfg.hideKernel, "hide-kernel", def.HideKernel, "hide tasks flagged PF_KTHREAD in /proc/<pid>/stat")
		fs.StringVar(&cfg.cgroupFilter, "cgroup-filter", def.CgroupFilter, "only show processes whose cgroup path contains this substring (case-insensitive)")
	case "psi-list", "psi-tree":
		fs.stringVar(&cfg.controller, "c", "controller", "", "PSI controller to display: cpu, io or memory (required)")
		fs.stringVar(&cfg.field, "f", "field", def.Field, "PSI field, e.g. some-avg10, full-avg60, some-total")
		if cfg.command == "psi-list" {
			fs.floatVar(&cfg.threshold, "t", "threshold", def.Threshold, "minimum field value; 0 keeps every cgroup")
		}
	}
	switch cfg.command {
	case "list", "psi-list", "rt-list":
		fs.intVar(&cfg.limit, "l", "limit", def.Limit, "maximum rows to display; 0 shows all")
	}

	if err := fs.Parse(args[1:]); err != nil {
		return runConfig{}, err
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	file, err := config.Load(fsys, config.Path(configPath))
	if err != nil {
		return runConfig{}, err
	}
	applyFile(&cfg, &version, file, fs.explicit())
	if version == "" {
		version = defaultVersion(cfg.command)
	}

	if cfg.version, err = cgroup.ParseVersion(version); err != nil {
		return runConfig{}, err
	}
	if strings.HasPrefix(cfg.command, "psi-") && cfg.controller == "" {
		return runConfig{}, errors.New("-c/--controller is required")
	}
	if cfg.output != "table" && cfg.output != "yaml" {
		return runConfig{}, fmt.Errorf("unknown output format %q", cfg.output)
	}
	if cfg.limit < 0 {
		cfg.limit = 0
	}
	cfg.cgroupFilter = strings.ToLower(strings.TrimSpace(cfg.cgroupFilter))
	return cfg, nil
}

// applyFile copies file values into every setting not given on the command line.
func applyFile(cfg *runConfig, version *string, file config.Config, set map[string]bool) {
	if !set["depth"] {
		cfg.depth = file.Depth
	}
	if !set["cgroup-version"] {
		*version = file.Version
	}
	if !set["mount"] {
		cfg.mount = file.Mount
	}
	if !set["textfile"] {
		cfg.textfile = file.Textfile
	}
	if !set["ascii"] {
		cfg.ascii = file.ASCII
	}
	if !set["metric"] {
		cfg.metric = file.Metric
	}
	if !set["threshold"] {
		cfg.threshold = file.Threshold
	}
	if !set["pidstat"] {
		cfg.pidstat = file.Pidstat
	}
	if !set["hide-kernel"] {
		cfg.hideKernel = file.HideKernel
	}
	if !set["cgroup-filter"] {
		cfg.cgroupFilter = file.CgroupFilter
	}
	if !set["field"] {
		cfg.field = file.Field
	}
	if !set["limit"] {
		cfg.limit = file.Limit
	}
}

// defaultVersion picks the hierarchy a report reads when neither a flag nor the config file
// names one. Realtime group scheduling files exist only on the v1 cpu controller.
func defaultVersion(command string) string {
	if strings.HasPrefix(command, "rt-") {
		return "v1"
	}
	return "v2"
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: cglens <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name])
	}
	fmt.Fprintln(w, "\nrun 'cglens <command> -h' for the flags of a command")
}

func main() {
	fsys := afero.NewOsFs()
	cfg, err := parseConfig(fsys, os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := environment{
		fs:    fsys,
		stats: pidstat.NewCollector(cfg.pidstat),
		out:   os.Stdout,
		tty:   term.IsTerminal(int(os.Stdout.Fd())),
	}
	if err := run(ctx, cfg, env); err != nil {
		klog.Errorf("%s: %v", cfg.command, err)
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}
