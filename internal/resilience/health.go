// Package resilience reports the health of the components a trading session
// depends on.
package resilience

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
)

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency_ns"`
}

// HealthCheck probes one component. Name and timing are filled in by the
// checker.
type HealthCheck func(ctx context.Context) ComponentHealth

// Report is the combined result of a health run.
type Report struct {
	Status     HealthStatus      `json:"status"`
	Uptime     time.Duration     `json:"uptime_ns"`
	Goroutines int               `json:"goroutines"`
	HeapMB     uint64            `json:"heap_mb"`
	Components []ComponentHealth `json:"components"`
}

// HealthCheckerConfig holds health checker configuration.
type HealthCheckerConfig struct {
	// Timeout bounds each run of the checks.
	Timeout            time.Duration
	MemoryThresholdMB  uint64
	GoroutineThreshold int
	Clock              func() time.Time
}

// DefaultHealthCheckerConfig returns the default configuration.
func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		Timeout:            3 * time.Second,
		MemoryThresholdMB:  500,
		GoroutineThreshold: 1000,
		Clock:              time.Now,
	}
}

// HealthChecker runs registered component checks on demand.
type HealthChecker struct {
	config    HealthCheckerConfig
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealthChecker creates a checker with no components.
func NewHealthChecker(config HealthCheckerConfig) *HealthChecker {
	def := DefaultHealthCheckerConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MemoryThresholdMB == 0 {
		config.MemoryThresholdMB = def.MemoryThresholdMB
	}
	if config.GoroutineThreshold <= 0 {
		config.GoroutineThreshold = def.GoroutineThreshold
	}
	if config.Clock == nil {
		config.Clock = def.Clock
	}
	return &HealthChecker{
		config:    config,
		startTime: config.Clock(),
		checks:    make(map[string]HealthCheck),
	}
}

// Register adds or replaces the check for name.
func (h *HealthChecker) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Check runs every registered check concurrently plus the process check and
// combines them. A panicking check counts as unhealthy.
func (h *HealthChecker) Check(ctx context.Context) Report {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	results := make([]ComponentHealth, 0, len(checks)+1)
	var mu sync.Mutex
	var wg conc.WaitGroup
	for name, check := range checks {
		wg.Go(func() {
			res := h.run(ctx, name, check)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
	}
	wg.Wait()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report := Report{
		Uptime:     h.config.Clock().Sub(h.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     mem.HeapAlloc / 1024 / 1024,
	}
	results = append(results, h.processHealth(report))

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	report.Components = results
	report.Status = Overall(results)
	return report
}

func (h *HealthChecker) run(ctx context.Context, name string, check HealthCheck) (res ComponentHealth) {
	start := h.config.Clock()
	defer func() {
		if r := recover(); r != nil {
			res = ComponentHealth{Status: HealthStatusUnhealthy, Message: "check panicked"}
		}
		res.Name = name
		res.LastCheck = h.config.Clock()
		res.Latency = res.LastCheck.Sub(start)
	}()
	return check(ctx)
}

func (h *HealthChecker) processHealth(r Report) ComponentHealth {
	c := ComponentHealth{Name: "process", Status: HealthStatusHealthy, LastCheck: h.config.Clock()}
	switch {
	case r.HeapMB > h.config.MemoryThresholdMB:
		c.Status = HealthStatusDegraded
		c.Message = "heap above threshold"
	case r.Goroutines > h.config.GoroutineThreshold:
		c.Status = HealthStatusDegraded
		c.Message = "goroutine count above threshold"
	}
	return c
}

// Overall is the worst status among components.
func Overall(components []ComponentHealth) HealthStatus {
	status := HealthStatusHealthy
	for _, c := range components {
		switch c.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// PingCheck turns a ping function into a check: an error is unhealthy.
func PingCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: HealthStatusHealthy}
	}
}

// FreshnessCheck is degraded when last() is older than maxAge, and when
// nothing has happened yet.
func FreshnessCheck(last func() (time.Time, bool), maxAge time.Duration, clock func() time.Time) HealthCheck {
	if clock == nil {
		clock = time.Now
	}
	return func(context.Context) ComponentHealth {
		t, ok := last()
		if !ok {
			return ComponentHealth{Status: HealthStatusDegraded, Message: "no update yet"}
		}
		if age := clock().Sub(t); age > maxAge {
			return ComponentHealth{Status: HealthStatusDegraded, Message: "last update " + age.Truncate(time.Second).String() + " ago"}
		}
		return ComponentHealth{Status: HealthStatusHealthy}
	}
}
