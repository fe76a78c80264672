package report

import (
	"strings"

	"github.com/srodi/cglens/pkg/types"
)

// ProcessFilter narrows retained process rows before they are sorted. The zero value keeps
// every row.
type ProcessFilter struct {
	// HideKernelThreads drops tasks the collector flagged as kernel threads.
	HideKernelThreads bool
	// Cgroup keeps rows whose cgroup contains it, case-insensitively.
	Cgroup string
}

// Apply returns the rows f keeps without reordering them.
func (f ProcessFilter) Apply(records []types.ProcessRecord) []types.ProcessRecord {
	needle := strings.ToLower(strings.TrimSpace(f.Cgroup))
	if !f.HideKernelThreads && needle == "" {
		return records
	}

	kept := make([]types.ProcessRecord, 0, len(records))
	for _, r := range records {
		if f.HideKernelThreads && r.KernelThread {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.Cgroup), needle) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
