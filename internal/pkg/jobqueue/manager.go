package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/env"
	"github.com/ManuelReschke/CertFox/internal/pkg/metrics"
)

const (
	DefaultUsageResetSchedule  = "0 0 1 * *"
	DefaultExpirySweepSchedule = "@hourly"
)

// Manager runs the job queue workers and the billing maintenance schedule
type Manager struct {
	queue    *Queue
	orgs     repository.OrganizationRepository
	notifier *Notifier
	metrics  *metrics.Metrics
	cron     *cron.Cron
	now      func() time.Time
	mu       sync.Mutex
	running  bool
}

func NewManager(queue *Queue, orgs repository.OrganizationRepository, m *metrics.Metrics) *Manager {
	return &Manager{
		queue:    queue,
		orgs:     orgs,
		notifier: NewNotifier(queue),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Notifier returns the billing notifier backed by the managed queue
func (m *Manager) Notifier() *Notifier {
	return m.notifier
}

// Start starts the job queue and the cron schedule
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	resetSpec := env.GetEnv("USAGE_RESET_SCHEDULE", DefaultUsageResetSchedule)
	if _, err := c.AddFunc(resetSpec, m.scheduled("usage_reset", func(ctx context.Context) error {
		_, err := m.RunMonthlyReset(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("schedule usage reset %q: %w", resetSpec, err)
	}
	sweepSpec := env.GetEnv("EXPIRY_SWEEP_SCHEDULE", DefaultExpirySweepSchedule)
	if _, err := c.AddFunc(sweepSpec, m.scheduled("subscription_expiry", func(ctx context.Context) error {
		_, err := m.RunExpirySweep(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", sweepSpec, err)
	}

	m.queue.Start()
	c.Start()
	m.cron = c
	m.running = true
	log.Infof("[Scheduler] Started (usage reset %q, expiry sweep %q)", resetSpec, sweepSpec)
	return nil
}

// Stop stops the schedule, waits for running tasks until ctx expires and
// then drains the queue workers.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping...")
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn("[Scheduler] Gave up waiting for running tasks")
	}
	m.queue.Stop()
	m.running = false
	log.Info("[Scheduler] Stopped")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) scheduled(task string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := run(ctx); err != nil {
			log.Errorf("[Scheduler] %s failed: %v", task, err)
			m.metrics.SchedulerRun(task, "error")
			return
		}
		m.metrics.SchedulerRun(task, "ok")
	}
}

// RunMonthlyReset zeroes the current-month usage of every organization whose
// counters belong to an earlier month.
func (m *Manager) RunMonthlyReset(ctx context.Context) (int64, error) {
	monthStart := models.MonthStart(m.now())
	n, err := m.orgs.ResetMonthlyUsage(ctx, monthStart)
	if err != nil {
		return 0, fmt.Errorf("reset monthly usage: %w", err)
	}
	log.Infof("[Scheduler] Monthly usage reset for %d organizations (period %s)", n, monthStart.Format("2006-01"))
	return n, nil
}

// RunExpirySweep ends deferred cancellations and flags lapsed subscriptions
// as past due, notifying every affected organization.
func (m *Manager) RunExpirySweep(ctx context.Context) (*repository.ExpiryResult, error) {
	res, err := m.orgs.ExpireSubscriptions(ctx, m.now())
	if err != nil {
		return nil, fmt.Errorf("expire subscriptions: %w", err)
	}
	for _, id := range res.Cancelled {
		if err := m.notifier.NotifySubscriptionExpired(ctx, id, false); err != nil {
			log.Warnf("[Scheduler] Could not queue expiry notice for org %s: %v", id, err)
		}
	}
	for _, id := range res.PastDue {
		if err := m.notifier.NotifySubscriptionExpired(ctx, id, true); err != nil {
			log.Warnf("[Scheduler] Could not queue past-due notice for org %s: %v", id, err)
		}
	}
	if len(res.Cancelled)+len(res.PastDue) > 0 {
		log.Infof("[Scheduler] Expiry sweep: %d cancelled, %d past due", len(res.Cancelled), len(res.PastDue))
	}
	return res, nil
}
