package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/srodi/cglens/pkg/collector/cgroup"
	"github.com/srodi/cglens/pkg/config"
	"github.com/srodi/cglens/pkg/types"
)

const mount = "/sys/fs/cgroup"

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvPidstat, "")

	cfg, err := parseConfig(afero.NewMemMapFs(), []string{"list"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "list", cfg.command)
	assert.Equal(t, "/", cfg.cgroup)
	assert.Equal(t, -1, cfg.depth)
	assert.Equal(t, cgroup.V2, cfg.version)
	assert.Equal(t, "%CPU", cfg.metric)
	assert.Equal(t, 1.0, cfg.threshold)
	assert.Equal(t, "pidstat", cfg.pidstat)
	assert.False(t, cfg.hideKernel)
	assert.Equal(t, "table", cfg.output)
}

func TestParseConfigRealtimeDefaultsToV1(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	fsys := afero.NewMemMapFs()

	for _, command := range []string{"rt-list", "rt-tree"} {
		cfg, err := parseConfig(fsys, []string{command}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, cgroup.V1, cfg.version, command)
	}

	cfg, err := parseConfig(fsys, []string{"rt-list", "--cgroup-version", "v2"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, cgroup.V2, cfg.version)

	require.NoError(t, afero.WriteFile(fsys, "/etc/cglens.yaml", []byte("version: v2\n"), 0o644))
	cfg, err = parseConfig(fsys, []string{"rt-tree", "--config", "/etc/cglens.yaml"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, cgroup.V2, cfg.version)
}

func TestParseConfigShortAndLongFlags(t *testing.T) {
	t.Setenv(config.EnvConfig, "")

	cfg, err := parseConfig(afero.NewMemMapFs(), []string{"psi-list", "-C", "machine.slice", "-c", "io", "--field", "full-avg60", "-d", "2", "-l", "5", "-t", "0"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "machine.slice", cfg.cgroup)
	assert.Equal(t, "io", cfg.controller)
	assert.Equal(t, "full-avg60", cfg.field)
	assert.Equal(t, 2, cfg.depth)
	assert.Equal(t, 5, cfg.limit)
	assert.Nil(t, pressureThreshold(cfg))
}

func TestParseConfigFileAndFlagPrecedence(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/cglens.yaml", []byte("depth: 3\nmetric: RSS\nthreshold: 4096\nversion: v1\n"), 0o644))
	t.Setenv(config.EnvConfig, "/etc/cglens.yaml")

	cfg, err := parseConfig(fsys, []string{"list", "--threshold", "10"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.depth)
	assert.Equal(t, "RSS", cfg.metric)
	assert.Equal(t, 10.0, cfg.threshold)
	assert.Equal(t, cgroup.V1, cfg.version)

	cfg, err = parseConfig(fsys, []string{"list", "-d", "0", "-m", "%MEM"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.depth)
	assert.Equal(t, "%MEM", cfg.metric)
}

func TestParseConfigErrors(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	fsys := afero.NewMemMapFs()

	cases := map[string][]string{
		"missing command":    nil,
		"unknown command":    {"top"},
		"controller missing": {"psi-tree"},
		"bad output":         {"tree", "-o", "json"},
		"bad version":        {"tree", "--cgroup-version", "v3"},
		"stray argument":     {"tree", "extra"},
		"flag of other cmd":  {"tree", "-m", "RSS"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(fsys, args, io.Discard)
			assert.Error(t, err)
		})
	}
}

type fakeStats map[int]types.ProcessRecord

func (f fakeStats) Stat(_ context.Context, pid int) (types.StatResult, error) {
	record, ok := f[pid]
	if !ok {
		return types.Unavailable(pid), nil
	}
	return types.StatResult{Record: record, Found: true}, nil
}

func newHierarchy(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"cgroup.procs":                                "1\n",
		"cpu.pressure":                                "some avg10=0.50 avg60=0.40 avg300=0.30 total=1000\nfull avg10=0.00 avg60=0.00 avg300=0.00 total=0\n",
		"cpu.rt_runtime_us":                           "950000\n",
		"cpu.rt_period_us":                            "1000000\n",
		"system.slice/cgroup.procs":                   "100\n101\n",
		"system.slice/cpu.pressure":                   "some avg10=3.25 avg60=1.00 avg300=0.50 total=5000\n",
		"system.slice/cpu.rt_runtime_us":              "400000\n",
		"system.slice/cpu.rt_period_us":               "1000000\n",
		"system.slice/sshd.service/cgroup.procs":      "200\n",
		"system.slice/sshd.service/cpu.pressure":      "some avg10=0.75 avg60=0.10 avg300=0.00 total=900\n",
		"system.slice/sshd.service/cpu.rt_runtime_us": "0\n",
		"system.slice/sshd.service/cpu.rt_period_us":  "1000000\n",
		"user.slice/cgroup.procs":                     "300\n",
		"user.slice/cpu.pressure":                     "some avg10=1.50 avg60=1.00 avg300=0.50 total=2500\n",
		"user.slice/cpu.rt_runtime_us":                "100000\n",
		"user.slice/cpu.rt_period_us":                 "1000000\n",
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(mount, name), []byte(content), 0o644))
	}
	return fsys
}

func testConfig(t *testing.T, args ...string) runConfig {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvPidstat, "")
	cfg, err := parseConfig(afero.NewMemMapFs(), append(args, "--mount", mount), io.Discard)
	require.NoError(t, err)
	return cfg
}

func runReport(t *testing.T, cfg runConfig, stats fakeStats) string {
	t.Helper()
	var out bytes.Buffer
	env := environment{fs: newHierarchy(t), stats: stats, out: &out}
	require.NoError(t, run(context.Background(), cfg, env))
	return out.String()
}

func TestRunTree(t *testing.T) {
	out := runReport(t, testConfig(t, "tree", "--ascii"), nil)
	want := strings.Join([]string{
		"/",
		"|-- system.slice",
		"|   `-- sshd.service",
		"`-- user.slice",
		"",
	}, "\n")
	assert.Equal(t, want, out)

	out = runReport(t, testConfig(t, "tree", "-d", "0"), nil)
	assert.Equal(t, "/\n", out)

	out = runReport(t, testConfig(t, "tree", "--ascii", "--files", "-d", "1", "-C", "system.slice"), nil)
	want = strings.Join([]string{
		"system.slice",
		"|-- sshd.service",
		"|   |-- cgroup.procs",
		"|   |-- cpu.pressure",
		"|   |-- cpu.rt_period_us",
		"|   `-- cpu.rt_runtime_us",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRunList(t *testing.T) {
	stats := fakeStats{
		100: {PID: 100, Command: "systemd-journal", Stats: map[string]string{"%CPU": "0.50"}},
		101: {PID: 101, Command: "dbus-daemon", Stats: map[string]string{"%CPU": "2.00"}},
		200: {PID: 200, Command: "sshd", Stats: map[string]string{"%CPU": "7.25"}},
		300: {PID: 300, Command: "watchdog", Stats: map[string]string{"%CPU": "9.00"}},
	}
	out := runReport(t, testConfig(t, "list"), stats)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"PID", "COMMAND", "%CPU", "CGROUP"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"300", "watchdog", "9.00", "/user.slice"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"200", "sshd", "7.25", "/system.slice/sshd.service"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"101", "dbus-daemon", "2.00", "/system.slice"}, strings.Fields(lines[3]))

	out = runReport(t, testConfig(t, "list", "-t", "100"), stats)
	assert.Equal(t, "No processes with %CPU >= 100\n", out)
}

func TestRunListHidesFlaggedKernelThreadsOnly(t *testing.T) {
	stats := fakeStats{
		100: {PID: 100, Command: "rcu-sync-agent", Stats: map[string]string{"%CPU": "40.00"}},
		101: {PID: 101, Command: "vhost-4242", Stats: map[string]string{"%CPU": "12.00"}, KernelThread: true},
		200: {PID: 200, Command: "sshd", Stats: map[string]string{"%CPU": "7.25"}},
		300: {PID: 300, Command: "watchdog", Stats: map[string]string{"%CPU": "55.00"}},
	}

	out := runReport(t, testConfig(t, "list", "--hide-kernel"), stats)
	var pids []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		pids = append(pids, strings.Fields(line)[0])
	}
	assert.Equal(t, []string{"300", "100", "200"}, pids)

	out = runReport(t, testConfig(t, "list"), stats)
	assert.Contains(t, out, "vhost-4242")
}

func TestRunPressureList(t *testing.T) {
	out := runReport(t, testConfig(t, "psi-list", "-c", "cpu", "-l", "2"), nil)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"3.25", "/system.slice"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1.50", "/user.slice"}, strings.Fields(lines[2]))

	out = runReport(t, testConfig(t, "psi-list", "-c", "cpu", "-f", "some-total", "-t", "0"), nil)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"5000", "/system.slice"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"900", "/system.slice/sshd.service"}, strings.Fields(lines[3]))
}

func TestRunPressureTree(t *testing.T) {
	out := runReport(t, testConfig(t, "psi-tree", "-c", "cpu", "--ascii"), nil)
	want := strings.Join([]string{
		"cpu some-avg10 PSI data",
		"/: 0.50",
		"|-- system.slice: 3.25",
		"|   `-- sshd.service: 0.75",
		"`-- user.slice: 1.50",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRunRealtimeList(t *testing.T) {
	out := runReport(t, testConfig(t, "rt-list"), nil)
	assert.Contains(t, out, "RUNTIME(us)")
	assert.Contains(t, out, "/system.slice")
	assert.NotContains(t, out, "sshd.service")
	assert.Contains(t, out, "Assigned to children: 50.00%")
	assert.Contains(t, out, "Remaining assignable runtime: 450000 us")
}

func TestRunRealtimeTree(t *testing.T) {
	out := runReport(t, testConfig(t, "rt-tree", "--ascii"), nil)
	want := strings.Join([]string{
		"Realtime allocation for /",
		"/: 95.00%",
		"|-- system.slice: 40.00%",
		"|   `-- sshd.service",
		"`-- user.slice: 10.00%",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestRunYAMLAndTextfile(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "cglens.prom")
	cfg := testConfig(t, "rt-list", "-o", "yaml", "--textfile", textfile)
	out := runReport(t, cfg, nil)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "rt-list", decoded["report"])
	assert.Equal(t, mount, decoded["root"])

	data, err := afero.ReadFile(afero.NewOsFs(), textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cglens_rt_percentage{cgroup="/system.slice"} 40`)
}

func TestRunMissingRoot(t *testing.T) {
	cfg := testConfig(t, "tree", "-C", "nope.slice")
	env := environment{fs: newHierarchy(t), out: io.Discard}
	err := run(context.Background(), cfg, env)

	var traversal *types.TraversalError
	require.ErrorAs(t, err, &traversal)
	assert.Equal(t, mount+"/nope.slice", traversal.Path)
}
