package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remittance_system/internal/db"
	"remittance_system/internal/domain"
	"remittance_system/internal/service"
	"remittance_system/internal/settlement"
	"remittance_system/internal/tenant"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTenants struct {
	clients []domain.Client
	err     error
}

func (s staticTenants) FindByID(ctx context.Context, id uint) (*domain.Client, error) {
	for i := range s.clients {
		if s.clients[i].ID == id {
			return &s.clients[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s staticTenants) FindByCode(ctx context.Context, code string) (*domain.Client, error) {
	for i := range s.clients {
		if s.clients[i].Code == code {
			return &s.clients[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s staticTenants) ListActive(ctx context.Context) ([]domain.Client, error) {
	return s.clients, s.err
}

type queueStub struct {
	mu   sync.Mutex
	jobs []settlement.Job
}

func (q *queueStub) Schedule(job settlement.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func seedStore(t *testing.T) string {
	t.Helper()
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "shared.db")
	gdb, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, db.MigrateTenant(gdb))
	now := time.Now()
	for i, tenantID := range []uint{1, 1, 2} {
		require.NoError(t, gdb.Create(&domain.SettlementJob{
			TenantID:      tenantID,
			TransactionID: uint(i + 1),
			ProviderRef:   "PA-" + string(rune('a'+i)),
			DueAt:         now,
			Status:        domain.SettlementJobPending,
		}).Error)
	}
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return dsn
}

func TestRecoverSettlements_QueuesEveryTenant(t *testing.T) {
	dsn := seedStore(t)
	log, _ := test.NewNullLogger()
	tenants := staticTenants{clients: []domain.Client{
		{ID: 1, Code: "ACME", Active: true},
		{ID: 2, Code: "GLOBEX", Active: true},
	}}
	resolver := tenant.NewResolver(tenants, tenant.ModeSingleStore, dsn, time.Second)
	router := db.NewRouter(nil, log)
	defer router.Shutdown(context.Background())
	queue := &queueStub{}
	payments := service.NewPayments(queue, 0, nil, log)

	s := NewScheduler(Config{MaxIdle: time.Minute}, tenants, resolver, router, payments, log)
	s.RecoverSettlements()

	require.Len(t, queue.jobs, 3)
	codes := map[string]int{}
	for _, job := range queue.jobs {
		codes[job.Tenant.Code]++
	}
	assert.Equal(t, map[string]int{"ACME": 2, "GLOBEX": 1}, codes)
	assert.Equal(t, 1, router.Len(), "shared store uses one connection")

	s.EvictIdleConnections()
	assert.Equal(t, 1, router.Len())
	s.cfg.MaxIdle = 0
	s.EvictIdleConnections()
	assert.Equal(t, 0, router.Len())
}

func TestRecoverSettlements_SkipsUnroutableTenant(t *testing.T) {
	dsn := seedStore(t)
	log, hook := test.NewNullLogger()
	tenants := staticTenants{clients: []domain.Client{
		{ID: 1, Code: "ACME", Active: true, ConnectionString: dsn},
		{ID: 2, Code: "GLOBEX", Active: true},
	}}
	resolver := tenant.NewResolver(tenants, tenant.ModePerTenantStore, "", time.Second)
	router := db.NewRouter(nil, log)
	defer router.Shutdown(context.Background())
	queue := &queueStub{}

	s := NewScheduler(Config{}, tenants, resolver, router, service.NewPayments(queue, 0, nil, log), log)
	s.RecoverSettlements()

	require.Len(t, queue.jobs, 2)
	assert.Equal(t, "tenant_acme", queue.jobs[0].Tenant.RoutingKey)
	assert.NotEmpty(t, hook.AllEntries())
}

func TestRecoverSettlements_ListFailureIsLogged(t *testing.T) {
	log, hook := test.NewNullLogger()
	tenants := staticTenants{err: errors.New("registry down")}
	resolver := tenant.NewResolver(tenants, tenant.ModeSingleStore, "unused", time.Second)

	s := NewScheduler(Config{}, tenants, resolver, db.NewRouter(nil, log), service.NewPayments(nil, 0, nil, log), log)
	s.RecoverSettlements()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Failed to list tenants for settlement sweep", hook.LastEntry().Message)
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	log, _ := test.NewNullLogger()
	tenants := staticTenants{}
	resolver := tenant.NewResolver(tenants, tenant.ModeSingleStore, "unused", time.Second)
	s := NewScheduler(Config{EvictSchedule: "not a schedule", SweepSchedule: "@every 1m"}, tenants, resolver, db.NewRouter(nil, log), service.NewPayments(nil, 0, nil, log), log)

	assert.Error(t, s.Start())

	s = NewScheduler(Config{EvictSchedule: "@every 1m", SweepSchedule: "@every 5m"}, tenants, resolver, db.NewRouter(nil, log), service.NewPayments(nil, 0, nil, log), log)
	require.NoError(t, s.Start())
	<-s.Stop().Done()
}
