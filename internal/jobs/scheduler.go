// Package jobs runs the periodic maintenance of the server: idle tenant
// connection eviction and the pending settlement sweep.
package jobs

import (
	"context"
	"time"

	"remittance_system/internal/db"
	"remittance_system/internal/domain"
	"remittance_system/internal/service"
	"remittance_system/internal/tenant"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TenantSource lists the tenants the sweep visits
type TenantSource interface {
	ListActive(ctx context.Context) ([]domain.Client, error)
}

// Router is the part of the connection router the jobs need
type Router interface {
	Acquire(ctx context.Context, key, dsn string) (*db.Handle, error)
	EvictIdle(maxIdle time.Duration) int
}

// Recoverer re-queues pending settlements of one tenant
type Recoverer interface {
	RecoverPending(ctx context.Context, scope service.Scope) (int, error)
}

// Config holds the schedules
type Config struct {
	EvictSchedule string        // cron spec for idle connection eviction
	MaxIdle       time.Duration // idle time before a connection is evicted
	SweepSchedule string        // cron spec for the settlement sweep
	SweepTimeout  time.Duration // bound for one sweep over all tenants
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	cfg       Config
	log       logrus.FieldLogger
	tenants   TenantSource
	resolver  *tenant.Resolver
	router    Router
	recoverer Recoverer
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg Config, tenants TenantSource, resolver *tenant.Resolver, router Router, recoverer Recoverer, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = time.Minute
	}
	log = log.WithField("component", "scheduler")
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log))))
	return &Scheduler{
		cron:      c,
		cfg:       cfg,
		log:       log,
		tenants:   tenants,
		resolver:  resolver,
		router:    router,
		recoverer: recoverer,
	}
}

// Start registers the jobs and starts the cron scheduler. An invalid schedule
// is returned before anything runs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.EvictSchedule, s.EvictIdleConnections); err != nil {
		return err
	}
	s.log.WithField("schedule", s.cfg.EvictSchedule).Info("Scheduled idle connection eviction")

	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.RecoverSettlements); err != nil {
		return err
	}
	s.log.WithField("schedule", s.cfg.SweepSchedule).Info("Scheduled settlement sweep")

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// EvictIdleConnections closes tenant connections idle for longer than MaxIdle.
func (s *Scheduler) EvictIdleConnections() {
	s.router.EvictIdle(s.cfg.MaxIdle)
}

// RecoverSettlements hands the pending settlement jobs of every active tenant
// back to the settlement queue. One failing tenant does not stop the sweep.
func (s *Scheduler) RecoverSettlements() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepTimeout)
	defer cancel()

	clients, err := s.tenants.ListActive(ctx)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("Failed to list tenants for settlement sweep")
		return
	}

	total := 0
	for i := range clients {
		tc, err := s.resolver.ContextFor(&clients[i])
		if err != nil {
			s.log.WithFields(logrus.Fields{"tenant": clients[i].Code, "error": err.Error()}).Warn("Skipping tenant in settlement sweep")
			continue
		}
		n, err := s.recoverTenant(ctx, tc)
		if err != nil {
			s.log.WithFields(logrus.Fields{"tenant": tc.Code, "error": err.Error()}).Warn("Settlement sweep failed for tenant")
			continue
		}
		total += n
	}
	s.log.WithFields(logrus.Fields{"tenants": len(clients), "queued": total}).Debug("Settlement sweep finished")
}

func (s *Scheduler) recoverTenant(ctx context.Context, tc tenant.Context) (int, error) {
	h, err := s.router.Acquire(ctx, tc.RoutingKey, tc.ConnString)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	return s.recoverer.RecoverPending(ctx, service.NewScope(h.DB, tc))
}
