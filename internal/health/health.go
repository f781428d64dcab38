// Package health samples process CPU/RSS periodically and folds the
// numbers into the metrics registry (SPEC_FULL.md §6's "process health"
// addition), so an operator can tell a wedged pipeline apart from a
// CPU-starved host. Grounded on the teacher's instance_reporter.go and
// load_history.go, both of which sample shirou/gopsutil/v3's cpu
// package on an interval; this package adds the process-level
// counterpart (RSS via gopsutil's process package) the teacher samples
// only at the host level.
package health

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

func currentPID() int { return os.Getpid() }

// Sample is one process-health reading.
type Sample struct {
	CPUPercent float64
	RSSBytes   uint64
}

// Sampler periodically reads process CPU/RSS and reports it through
// OnSample (typically wired to internal/metrics gauges).
type Sampler struct {
	pid      int32
	interval time.Duration
	OnSample func(Sample)
}

// NewSampler builds a sampler for the current process, sampling once
// per interval (SPEC_FULL.md §6: "once per minute").
func NewSampler(interval time.Duration) (*Sampler, error) {
	proc, err := process.NewProcess(int32(currentPID()))
	if err != nil {
		return nil, err
	}
	return &Sampler{pid: proc.Pid, interval: interval}, nil
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sample, ok := s.read(); ok && s.OnSample != nil {
				s.OnSample(sample)
			}
		}
	}
}

func (s *Sampler) read() (Sample, bool) {
	proc, err := process.NewProcess(s.pid)
	if err != nil {
		return Sample{}, false
	}
	pct, err := proc.CPUPercent()
	if err != nil {
		return Sample{}, false
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Sample{}, false
	}
	return Sample{CPUPercent: pct, RSSBytes: mem.RSS}, true
}
