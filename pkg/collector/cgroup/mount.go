package cgroup

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Version selects the cgroup hierarchy flavor.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// ParseVersion accepts "1", "2", "v1" or "v2".
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "v1":
		return V1, nil
	case "2", "v2", "":
		return V2, nil
	}
	return 0, fmt.Errorf("unknown cgroup version %q", s)
}

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

const mountsFile = "/proc/self/mounts"

// ResolveMount finds the mount point for version. On v1 the mount must carry controller.
func ResolveMount(fs afero.Fs, version Version, controller string) (string, error) {
	data, err := afero.ReadFile(fs, mountsFile)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", mountsFile)
	}

	mount, err := parseMounts(data, version, controller)
	if err != nil {
		return "", err
	}
	if err := verifyMount(mount, version); err != nil {
		return "", err
	}
	return mount, nil
}

func parseMounts(data []byte, version Version, controller string) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		target, fstype, options := fields[1], fields[2], fields[3]
		switch version {
		case V2:
			if fstype == "cgroup2" {
				return unescapeMount(target), nil
			}
		case V1:
			if fstype != "cgroup" {
				continue
			}
			for _, opt := range strings.Split(options, ",") {
				if opt == controller {
					return unescapeMount(target), nil
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "scanning mount table")
	}
	if version == V1 {
		return "", fmt.Errorf("no cgroup v1 mount found for controller %q", controller)
	}
	return "", fmt.Errorf("no %s cgroup mount found", version)
}

// unescapeMount undoes the octal escaping the kernel applies to spaces in mount paths.
func unescapeMount(path string) string {
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(path)
}
