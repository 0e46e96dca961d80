package health

import (
	"context"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

// Checkable is satisfied by the store adapters.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// DependencyChecker probes an adapter under a timeout. A failing optional
// dependency reports degraded instead of unhealthy.
type DependencyChecker struct {
	name     string
	adapter  Checkable
	timeout  time.Duration
	optional bool
}

// NewDependencyChecker creates a checker for adapter.
func NewDependencyChecker(name string, adapter Checkable, timeout time.Duration, optional bool) *DependencyChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &DependencyChecker{name: name, adapter: adapter, timeout: timeout, optional: optional}
}

// NewStoreChecker probes the document store. The service cannot answer without it.
func NewStoreChecker(adapter Checkable, timeout time.Duration) *DependencyChecker {
	return NewDependencyChecker("mongodb", adapter, timeout, false)
}

// NewCacheChecker probes the list result cache. Lists fall back to the
// store when it is down, so a failure only degrades the service.
func NewCacheChecker(adapter Checkable, timeout time.Duration) *DependencyChecker {
	return NewDependencyChecker("redis", adapter, timeout, true)
}

// Check runs the probe.
func (c *DependencyChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := CheckResult{Name: c.name, Status: StatusHealthy, Message: "reachable"}
	if err := c.adapter.HealthCheck(checkCtx); err != nil {
		result.Status = StatusUnhealthy
		if c.optional {
			result.Status = StatusDegraded
		}
		result.Message = "unreachable"
		result.Error = err.Error()
	}
	result.Timestamp = time.Now()
	result.Duration = time.Since(start)
	return result
}

// Name returns the dependency name.
func (c *DependencyChecker) Name() string {
	return c.name
}
