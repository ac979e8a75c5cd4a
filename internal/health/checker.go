package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	ID            string
}

// Probe is a liveness check for one backing dependency.
type Probe interface {
	Ping(ctx context.Context) error
}

// ProbeFunc adapts a bare function to the Probe interface.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Ping(ctx context.Context) error { return f(ctx) }

type CheckResult struct {
	Timestamp time.Time `json:"timestamp"`
	Result    bool      `json:"result"`
}

type HealthStatus struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckResult `json:"checks"`
}

type Checker struct {
	config *Config
	probes map[string]Probe
	log    *slog.Logger

	mu     sync.RWMutex
	checks map[string]CheckResult
}

// NewChecker starts out assuming every probe is healthy; the dependencies
// were just dialled by the caller, so the first real verdict arrives one
// interval later.
func NewChecker(probes map[string]Probe, config *Config) *Checker {
	checks := make(map[string]CheckResult, len(probes))
	for name := range probes {
		checks[name] = CheckResult{Timestamp: time.Now(), Result: true}
	}

	return &Checker{
		config: config,
		probes: probes,
		log:    slog.With("pod", config.ID, "component", "health"),
		checks: checks,
	}
}

func (c *Checker) Run(ctx context.Context) {
	c.log.Debug("Starting the health checker...")

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("Stopping health checker ...")
			return
		case <-ticker.C:
			c.runChecks(ctx)
		}
	}
}

func (c *Checker) runChecks(ctx context.Context) {
	for name, probe := range c.probes {
		checkCtx, cancel := context.WithTimeout(ctx, c.config.CheckTimeout)
		err := probe.Ping(checkCtx)
		cancel()

		if err != nil {
			c.log.Warn("Dependency health check failed", "dependency", name, "error", err)
		}

		c.mu.Lock()
		c.checks[name] = CheckResult{
			Timestamp: time.Now(),
			Result:    err == nil,
		}
		c.mu.Unlock()
	}
}

func (c *Checker) GetHealthStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	healthy := true
	checks := make(map[string]CheckResult, len(c.checks))

	for name, check := range c.checks {
		checks[name] = check
		if !check.Result {
			healthy = false
		}
	}

	return HealthStatus{
		Healthy: healthy,
		Checks:  checks,
	}
}
