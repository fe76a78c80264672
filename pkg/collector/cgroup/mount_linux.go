//go:build linux
// +build linux

package cgroup

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// statfsType allows tests to stub the filesystem magic lookup.
var statfsType = func(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Type), nil
}

// verifyMount checks the resolved path really is a cgroup filesystem of the requested version.
func verifyMount(path string, version Version) error {
	magic, err := statfsType(path)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}

	want := int64(unix.CGROUP2_SUPER_MAGIC)
	if version == V1 {
		want = int64(unix.CGROUP_SUPER_MAGIC)
	}
	if magic != want {
		return fmt.Errorf("%s is not a cgroup %s filesystem (magic %#x)", path, version, magic)
	}
	return nil
}
