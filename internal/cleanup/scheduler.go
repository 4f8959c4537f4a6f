package cleanup

import (
	"context"
	"sync"
	"time"

	"gitscribe/internal/config"
	"gitscribe/internal/oauth"
	"gitscribe/internal/workspace"
	"gitscribe/pkg/logging"
)

// diskWarnFraction is the share of the disk budget at which the sweep
// starts warning before any eviction happens.
const diskWarnFraction = 0.8

// stopPollInterval bounds how long Stop waits for the loop to notice.
const stopPollInterval = time.Second

// Status is a snapshot of the scheduler's last sweep.
type Status struct {
	Running          bool      `json:"running"`
	LastSweep        time.Time `json:"last_sweep"`
	ExpiredSessions  int       `json:"expired_sessions"`
	InvalidSessions  int       `json:"invalid_sessions"`
	EvictedSessions  int       `json:"evicted_sessions"`
	SweptDeviceFlows int       `json:"swept_device_flows"`
	DiskUsageBytes   int64     `json:"disk_usage_bytes"`
	DiskBudgetBytes  int64     `json:"disk_budget_bytes"`
}

// Scheduler periodically evicts idle sessions, enforces the workspace disk
// budget, and sweeps finished device flows. All sweeps can also be run on
// demand.
type Scheduler struct {
	registry *workspace.Registry
	flows    *oauth.Client
	limiter  *oauth.RateLimiter
	cfg      config.CleanupConfig

	mu     sync.Mutex
	status Status
	stop   chan struct{}
	done   chan struct{}
}

// NewScheduler wires a scheduler. flows and limiter may be nil when the
// OAuth subsystem is disabled.
func NewScheduler(registry *workspace.Registry, flows *oauth.Client, limiter *oauth.RateLimiter, cfg config.CleanupConfig) *Scheduler {
	return &Scheduler{
		registry: registry,
		flows:    flows,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// UpdateConfig swaps the sweep tuning at runtime, applied from the next
// sweep on.
func (s *Scheduler) UpdateConfig(cfg config.CleanupConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	logging.Info("Cleanup", "Applied new cleanup configuration")
}

func (s *Scheduler) config() config.CleanupConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Scheduler) interval() time.Duration {
	minutes := s.config().CheckIntervalMinutes
	if minutes <= 0 {
		minutes = config.DefaultCheckIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) sessionTTL() time.Duration {
	hours := s.config().SessionTimeoutHours
	if hours <= 0 {
		hours = config.DefaultSessionTimeoutHours
	}
	return time.Duration(hours) * time.Hour
}

func (s *Scheduler) diskBudget() int64 {
	gb := s.config().MaxDiskUsageGB
	if gb <= 0 {
		gb = config.DefaultMaxDiskUsageGB
	}
	return int64(gb * 1024 * 1024 * 1024)
}

// Start launches the sweep loop. It returns immediately; Stop shuts the
// loop down and waits for a running sweep to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.status.Running = true
	stop, done := s.stop, s.done
	s.mu.Unlock()

	logging.Info("Cleanup", "Scheduler started (interval: %s, session TTL: %s)",
		s.interval(), s.sessionTTL())

	go s.loop(ctx, stop, done)
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	next := time.Now().Add(s.interval())
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(next) {
				continue
			}
			s.Sweep(ctx)
			next = now.Add(s.interval())
		}
	}
}

// Stop halts the loop and blocks until it exits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.status.Running = false
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	logging.Info("Cleanup", "Scheduler stopped")
}

// Sweep runs every maintenance pass once: expired sessions, invalid
// sessions, disk budget, device flows, and rate limiter entries.
func (s *Scheduler) Sweep(ctx context.Context) Status {
	expired := s.registry.CleanupExpired(s.sessionTTL())
	invalid := s.registry.CleanupInvalid()
	evicted := s.enforceDiskBudget()

	flows := 0
	if s.flows != nil {
		flows = s.flows.SweepExpiredFlows()
	}
	if s.limiter != nil {
		s.limiter.Prune()
	}

	usage := s.registry.TotalDiskUsage()
	budget := s.diskBudget()

	s.mu.Lock()
	s.status.LastSweep = time.Now()
	s.status.ExpiredSessions = expired
	s.status.InvalidSessions = invalid
	s.status.EvictedSessions = evicted
	s.status.SweptDeviceFlows = flows
	s.status.DiskUsageBytes = usage
	s.status.DiskBudgetBytes = budget
	snapshot := s.status
	s.mu.Unlock()

	if expired+invalid+evicted+flows > 0 {
		logging.Info("Cleanup", "Sweep removed %d expired, %d invalid, %d evicted sessions and %d device flows",
			expired, invalid, evicted, flows)
	}
	return snapshot
}

func (s *Scheduler) enforceDiskBudget() int {
	usage := s.registry.TotalDiskUsage()
	budget := s.diskBudget()
	if usage >= int64(float64(budget)*diskWarnFraction) && usage < budget {
		logging.Warn("Cleanup", "Workspace disk usage at %d of %d bytes", usage, budget)
	}
	if usage < budget {
		return 0
	}
	return s.registry.CleanupDiskSpace(budget)
}

// Status returns the latest sweep snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
