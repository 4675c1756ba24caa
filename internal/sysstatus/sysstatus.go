// Package sysstatus implements the environmental-intelligence oracle: a
// tri-state GREEN/YELLOW/RED signal derived from host CPU and memory
// pressure, consulted by the datastore before permitting ephemeral disk
// writes.
package sysstatus

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Status is the tri-state system health signal.
type Status string

// The three defined statuses.
const (
	Green  Status = "GREEN"
	Yellow Status = "YELLOW"
	Red    Status = "RED"
)

// Thresholds controls where CPU/memory pressure crosses from GREEN to
// YELLOW to RED. Percentages are 0-100.
type Thresholds struct {
	CPUYellow float64
	CPURed    float64
	MemYellow float64
	MemRed    float64
}

// DefaultThresholds matches typical headroom targets: stay GREEN below 70%
// utilization, RED above 90%.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUYellow: 70, CPURed: 90, MemYellow: 70, MemRed: 90}
}

// Sampler reads the current CPU/memory status, caching the result for one
// second so a burst of DataIO calls doesn't hammer the OS for every write.
// Safe for concurrent use.
type Sampler struct {
	thresholds Thresholds
	ttl        time.Duration

	mu       sync.Mutex
	cached   Status
	cachedAt time.Time
}

// New creates a Sampler with a 1-second cache TTL and the given thresholds.
func New(thresholds Thresholds) *Sampler {
	return &Sampler{thresholds: thresholds, ttl: time.Second}
}

// Status returns the current environmental status, either from cache or by
// sampling CPU/memory afresh. If sampling fails (e.g. the platform doesn't
// expose the stat), Status degrades to GREEN per "if not wired, treat as
// GREEN".
func (s *Sampler) Status(ctx context.Context) Status {
	s.mu.Lock()
	if !s.cachedAt.IsZero() && time.Since(s.cachedAt) < s.ttl {
		cached := s.cached
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	status := s.sample(ctx)

	s.mu.Lock()
	s.cached = status
	s.cachedAt = time.Now()
	s.mu.Unlock()

	return status
}

func (s *Sampler) sample(ctx context.Context) Status {
	cpuPct, cpuErr := cpu.PercentWithContext(ctx, 0, false)
	vmem, memErr := mem.VirtualMemoryWithContext(ctx)

	if cpuErr != nil && memErr != nil {
		return Green
	}

	var cpuUsed, memUsed float64
	if cpuErr == nil && len(cpuPct) > 0 {
		cpuUsed = cpuPct[0]
	}
	if memErr == nil && vmem != nil {
		memUsed = vmem.UsedPercent
	}

	if cpuUsed >= s.thresholds.CPURed || memUsed >= s.thresholds.MemRed {
		return Red
	}
	if cpuUsed >= s.thresholds.CPUYellow || memUsed >= s.thresholds.MemYellow {
		return Yellow
	}
	return Green
}
