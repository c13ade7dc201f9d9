// Package system samples the collector's own footprint and the host it runs on.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type Sample struct {
	PID                int32   `json:"pid"`
	RSSBytes           uint64  `json:"rss_bytes"`
	CPUPercent         float64 `json:"cpu_percent"`
	Goroutines         int     `json:"goroutines"`
	HostMemUsedPercent float64 `json:"host_mem_used_percent"`
	DataDirFreeBytes   uint64  `json:"data_dir_free_bytes"`
	DataDirUsedPercent float64 `json:"data_dir_used_percent"`
}

type Sampler struct {
	proc    *process.Process
	dataDir string
}

func NewSampler(ctx context.Context, dataDir string) (*Sampler, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open own process: %w", err)
	}
	return &Sampler{proc: p, dataDir: dataDir}, nil
}

// Sample returns whatever could be read; the error joins every part that failed.
func (s *Sampler) Sample(ctx context.Context) (Sample, error) {
	out := Sample{PID: s.proc.Pid, Goroutines: runtime.NumGoroutine()}
	var errs []error

	if mi, err := s.proc.MemoryInfoWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("process memory: %w", err))
	} else {
		out.RSSBytes = mi.RSS
	}
	if pct, err := s.proc.CPUPercentWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("process cpu: %w", err))
	} else {
		out.CPUPercent = pct
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("host memory: %w", err))
	} else {
		out.HostMemUsedPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, s.dataDir); err != nil {
		errs = append(errs, fmt.Errorf("data dir usage: %w", err))
	} else {
		out.DataDirFreeBytes = du.Free
		out.DataDirUsedPercent = du.UsedPercent
	}
	return out, errors.Join(errs...)
}
