//go:build !linux
// +build !linux

package cgroup

import "errors"

var errUnsupported = errors.New("cgroup mount resolution requires linux")

// verifyMount always fails on unsupported platforms.
func verifyMount(path string, version Version) error {
	return errUnsupported
}
