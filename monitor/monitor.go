// Package monitor runs scheduled health checks against a generator.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalder/genwire/llm"
)

// HealthChecker is the slice of the generator contract the monitor needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the outcome of the most recent health check.
type Status struct {
	Healthy   bool
	CheckedAt time.Time
	Err       error
}

// Monitor periodically runs health checks on a schedule and tracks the
// last observed status.
type Monitor struct {
	checker  HealthChecker
	schedule Schedule
	timeout  time.Duration
	logger   zerolog.Logger

	mu   sync.RWMutex
	last Status
}

// New creates a Monitor from a schedule string (cron expression or Go
// duration) and a per-check timeout.
func New(checker HealthChecker, schedule string, timeout time.Duration, logger zerolog.Logger) (*Monitor, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = llm.DefaultTimeout
	}
	return &Monitor{
		checker:  checker,
		schedule: sched,
		timeout:  timeout,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}, nil
}

// Run checks immediately, then on every schedule tick until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().Msg("Starting health monitor")
	m.check(ctx)

	for {
		next := m.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info().Msg("Health monitor stopped")
			return
		case <-timer.C:
			m.check(ctx)
		}
	}
}

// Status returns the most recent health check outcome.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.checker.HealthCheck(checkCtx)
	status := Status{
		Healthy:   err == nil,
		CheckedAt: time.Now(),
		Err:       err,
	}

	m.mu.Lock()
	m.last = status
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("code", string(llm.CodeOf(err))).
			Msg("Health check failed")
		return
	}
	m.logger.Info().Msg("Health check passed")
}
