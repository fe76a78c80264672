package cgroup

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/srodi/cglens/pkg/types"
)

const (
	procsFile     = "cgroup.procs"
	rtRuntimeFile = "cpu.rt_runtime_us"
	rtPeriodFile  = "cpu.rt_period_us"
)

// Reader reads control files of individual cgroups.
type Reader struct {
	fs afero.Fs
}

// NewReader returns a Reader backed by fs.
func NewReader(fs afero.Fs) *Reader {
	return &Reader{fs: fs}
}

// Pids returns the processes currently attached to the cgroup at path.
func (r *Reader) Pids(path string) ([]int, error) {
	data, err := r.readControl(path, procsFile)
	if err != nil {
		return nil, err
	}

	var pids []int
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, &types.CollaboratorError{
				Op:  "parsing " + filepath.Join(path, procsFile),
				Err: err,
			}
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Pressure returns the PSI fields of controller flattened to "some-avg10" style keys.
func (r *Reader) Pressure(path, controller string) (map[string]string, error) {
	file := controller + ".pressure"
	data, err := r.readControl(path, file)
	if err != nil {
		return nil, err
	}

	psi, err := ParsePressure(data)
	if err != nil {
		return nil, &types.CollaboratorError{Op: "parsing " + filepath.Join(path, file), Err: err}
	}
	return psi, nil
}

// ParsePressure flattens lines such as
//
//	some avg10=0.00 avg60=0.00 avg300=0.00 total=0
//
// into {"some-avg10": "0.00", ...}.
func ParsePressure(data []byte) (map[string]string, error) {
	psi := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		kind := fields[0]
		for _, field := range fields[1:] {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				return nil, errors.Errorf("malformed pressure field %q", field)
			}
			psi[kind+"-"+key] = value
		}
	}
	if len(psi) == 0 {
		return nil, errors.New("empty pressure file")
	}
	return psi, nil
}

// Realtime returns the node's realtime runtime and period. Missing files mean the kernel
// has no realtime group scheduling for this hierarchy, which reads as unconfigured.
func (r *Reader) Realtime(path string) (types.RealtimeBudget, error) {
	if _, err := r.fs.Stat(path); err != nil {
		return types.RealtimeBudget{}, r.wrap(path, "", err)
	}

	runtime, ok, err := r.readOptionalInt(path, rtRuntimeFile)
	if err != nil || !ok {
		return types.RealtimeBudget{}, err
	}
	period, ok, err := r.readOptionalInt(path, rtPeriodFile)
	if err != nil || !ok {
		return types.RealtimeBudget{}, err
	}

	return types.RealtimeBudget{
		RuntimeUs:  runtime,
		PeriodUs:   period,
		Configured: runtime > 0 && period > 0,
	}, nil
}

func (r *Reader) readOptionalInt(path, file string) (int64, bool, error) {
	data, err := afero.ReadFile(r.fs, filepath.Join(path, file))
	if err != nil {
		if os.IsNotExist(err) {
			if _, serr := r.fs.Stat(path); serr != nil {
				return 0, false, r.wrap(path, file, serr)
			}
			return 0, false, nil
		}
		return 0, false, r.wrap(path, file, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, &types.CollaboratorError{Op: "parsing " + filepath.Join(path, file), Err: err}
	}
	return v, true, nil
}

func (r *Reader) readControl(path, file string) ([]byte, error) {
	data, err := afero.ReadFile(r.fs, filepath.Join(path, file))
	if err != nil {
		return nil, r.wrap(path, file, err)
	}
	return data, nil
}

// wrap maps a vanished cgroup to ErrNodeGone and everything else to a CollaboratorError.
func (r *Reader) wrap(path, file string, err error) error {
	if os.IsNotExist(err) {
		if _, serr := r.fs.Stat(path); serr != nil && os.IsNotExist(serr) {
			return errors.Wrapf(types.ErrNodeGone, "%s", path)
		}
	}
	return &types.CollaboratorError{Op: "reading " + filepath.Join(path, file), Err: err}
}
