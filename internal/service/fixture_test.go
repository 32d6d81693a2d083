package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"remittance_system/internal/db"
	"remittance_system/internal/domain"
	"remittance_system/internal/events"
	"remittance_system/internal/settlement"
	"remittance_system/internal/tenant"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []settlement.Job
	seen map[uint]bool
}

func (s *recordingScheduler) Schedule(job settlement.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[uint]bool{}
	}
	if s.seen[job.ID] {
		return false
	}
	s.seen[job.ID] = true
	s.jobs = append(s.jobs, job)
	return true
}

func (s *recordingScheduler) scheduled() []settlement.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]settlement.Job(nil), s.jobs...)
}

type fixture struct {
	scope Scope
	other Scope
	dsn   string

	sender, admin, stranger, foreigner domain.User
	beneficiary, foreignBeneficiary   domain.Beneficiary

	pub       *recordingPublisher
	scheduler *recordingScheduler
	hook      *test.Hook
	log       *logrus.Logger

	transactions *Transactions
	payments     *Payments
	withdrawals  *Withdrawals
	wallets      *Wallets
}

// newFixture opens a migrated sqlite store shared by two tenants, ACME (1)
// and GLOBEX (2).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "tenant.db")
	gdb, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	return newFixtureOn(t, gdb, dsn)
}

func newFixtureOn(t *testing.T, gdb *gorm.DB, dsn string) *fixture {
	t.Helper()
	gdb.Logger = logger.Default.LogMode(logger.Silent)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.MigrateTenant(gdb))

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	f := &fixture{
		scope: NewScope(gdb, tenant.Context{Code: "ACME", TenantID: 1, RoutingKey: tenant.SharedRoutingKey, ConnString: dsn, Mode: tenant.ModeSingleStore}),
		other: NewScope(gdb, tenant.Context{Code: "GLOBEX", TenantID: 2, RoutingKey: tenant.SharedRoutingKey, ConnString: dsn, Mode: tenant.ModeSingleStore}),
		dsn:   dsn,

		sender:    domain.User{TenantID: 1, Email: "sender@acme.test", FullName: "Sam Sender", Role: domain.RoleUser},
		admin:     domain.User{TenantID: 1, Email: "ops@acme.test", FullName: "Olive Ops", Role: domain.RoleAdmin},
		stranger:  domain.User{TenantID: 1, Email: "other@acme.test", FullName: "Oscar Other", Role: domain.RoleUser},
		foreigner: domain.User{TenantID: 2, Email: "sender@globex.test", FullName: "Gail Globex", Role: domain.RoleAdmin},

		pub:       &recordingPublisher{},
		scheduler: &recordingScheduler{},
		hook:      hook,
		log:       log,
	}
	for _, u := range []*domain.User{&f.sender, &f.admin, &f.stranger, &f.foreigner} {
		require.NoError(t, gdb.Create(u).Error)
	}
	f.beneficiary = domain.Beneficiary{TenantID: 1, UserID: f.sender.ID, FullName: "Rita Receiver", Country: "PH", PayoutAccount: "09171234567"}
	f.foreignBeneficiary = domain.Beneficiary{TenantID: 2, UserID: f.foreigner.ID, FullName: "Gus Receiver", Country: "MX"}
	require.NoError(t, gdb.Create(&f.beneficiary).Error)
	require.NoError(t, gdb.Create(&f.foreignBeneficiary).Error)

	f.transactions = NewTransactions(f.pub, log)
	f.payments = NewPayments(f.scheduler, 0, f.pub, log)
	f.withdrawals = NewWithdrawals(f.pub, log)
	f.wallets = NewWallets(f.pub, log)
	return f
}

func (f *fixture) create(t *testing.T, amount string) *domain.Transaction {
	t.Helper()
	tx, err := f.transactions.Create(context.Background(), f.scope, CreateTransactionInput{
		SenderID:      f.sender.ID,
		BeneficiaryID: f.beneficiary.ID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "usd",
		PayoutMethod:  "MOBILE_WALLET",
	})
	require.NoError(t, err)
	return tx
}

func (f *fixture) validated(t *testing.T, amount string) *domain.Transaction {
	t.Helper()
	tx := f.create(t, amount)
	tx, err := f.transactions.AdminTransition(context.Background(), f.scope, f.admin.ID, tx.ID, domain.TransactionValidated)
	require.NoError(t, err)
	return tx
}

func (f *fixture) paid(t *testing.T, amount string) *domain.Transaction {
	t.Helper()
	tx := f.validated(t, amount)
	_, err := f.payments.Initiate(context.Background(), f.scope, InitiatePaymentInput{
		UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderB,
	})
	require.NoError(t, err)
	tx, err = f.transactions.AdminTransition(context.Background(), f.scope, f.admin.ID, tx.ID, domain.TransactionPaid)
	require.NoError(t, err)
	return tx
}

func (f *fixture) reload(t *testing.T, id uint) *domain.Transaction {
	t.Helper()
	tx, err := findTransaction(context.Background(), f.scope, id)
	require.NoError(t, err)
	return tx
}

func (f *fixture) loggedAt(level logrus.Level, msg string) bool {
	for _, e := range f.hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}
