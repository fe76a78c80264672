package pidstat

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/srodi/cglens/pkg/types"
)

// DefaultBinary is looked up in PATH when no explicit binary is configured.
const DefaultBinary = "pidstat"

var errMalformed = errors.New("malformed pidstat record")

// runPidstat allows tests to stub the external command.
var runPidstat = func(ctx context.Context, binary string, pid int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, "-H", "-h", "-r", "-u", "-v", "-p", strconv.Itoa(pid))
	return cmd.Output()
}

// Collector fetches one sysstat pidstat sample per process.
type Collector struct {
	binary string
	cache  map[int]string
}

// NewCollector returns a collector running binary, or DefaultBinary when empty.
func NewCollector(binary string) *Collector {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Collector{binary: binary, cache: make(map[int]string)}
}

// Stat samples pid. A process that exited before it could be sampled is reported as not
// found rather than as an error.
func (c *Collector) Stat(ctx context.Context, pid int) (types.StatResult, error) {
	out, err := runPidstat(ctx, c.binary, pid)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return types.StatResult{}, &types.CollaboratorError{
				Op:  "running " + c.binary,
				Err: err,
			}
		}
		// pidstat exits non-zero when the pid is gone; whatever it printed is still parsed
		// so a header without data reads as unavailable.
	}

	stats, err := Parse(out)
	switch {
	case errors.Is(err, types.ErrMetricUnavailable):
		return types.Unavailable(pid), nil
	case err != nil:
		return types.StatResult{}, &types.CollaboratorError{
			Op:  "parsing " + c.binary + " output for pid " + strconv.Itoa(pid),
			Err: err,
		}
	}

	command := stats["Command"]
	if command == "" {
		command = commForPID(pid, c.cache)
	}
	return types.StatResult{
		Record: types.ProcessRecord{PID: pid, Command: command, Stats: stats, KernelThread: kernelThread(pid)},
		Found:  true,
	}, nil
}

// Parse reads pidstat output: an optional "Linux ..." banner, a "#" header naming the
// columns, and one data line. Output without a data line, including empty output, is
// ErrMetricUnavailable; data without a header is malformed.
func Parse(out []byte) (map[string]string, error) {
	var keys, values []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "", strings.HasPrefix(line, "Linux"):
			continue
		case strings.HasPrefix(line, "#"):
			keys = strings.Fields(strings.TrimLeft(line, "#"))
		default:
			values = strings.Fields(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "scanning pidstat output")
	}

	if values == nil {
		return nil, types.ErrMetricUnavailable
	}
	if len(keys) == 0 {
		return nil, pkgerrors.Wrap(errMalformed, "data line without header")
	}
	if len(values) < len(keys) {
		return nil, pkgerrors.Wrapf(errMalformed, "%d values for %d columns", len(values), len(keys))
	}

	stats := make(map[string]string, len(keys))
	last := len(keys) - 1
	for i, key := range keys[:last] {
		stats[key] = values[i]
	}
	// the trailing Command column may itself contain spaces
	stats[keys[last]] = strings.Join(values[last:], " ")
	return stats, nil
}
