package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remittance_system/internal/db"
	"remittance_system/internal/domain"
	"remittance_system/internal/events"
	"remittance_system/internal/settlement"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fund(t *testing.T, f *fixture, amount string) {
	t.Helper()
	_, err := f.wallets.Credit(context.Background(), f.scope, f.admin.ID, CreditInput{
		UserID: f.sender.ID, Amount: decimal.RequireFromString(amount), Currency: "USD",
	})
	require.NoError(t, err)
}

func pendingJobs(t *testing.T, f *fixture) []domain.SettlementJob {
	t.Helper()
	var jobs []domain.SettlementJob
	require.NoError(t, f.scope.DB.Where("status = ?", domain.SettlementJobPending).Find(&jobs).Error)
	return jobs
}

func TestInitiate_WalletDebitsAndSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fund(t, f, "150")
	tx := f.validated(t, "100")

	res, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodWallet})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionPaid, res.Status)
	assert.Equal(t, domain.ProviderDirect, res.Provider)
	assert.Equal(t, domain.ProviderStatusSuccess, res.ProviderStatus)
	assert.NotEmpty(t, res.ProviderRef)
	require.NotNil(t, res.PaidAt)

	w, err := f.wallets.Get(ctx, f.scope, f.sender.ID)
	require.NoError(t, err)
	assert.Equal(t, "47.00", w.Balance.StringFixed(2))
	assert.Contains(t, f.pub.types(), events.TransactionPaid)
}

func TestInitiate_WalletInsufficientFundsChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fund(t, f, "100")
	tx := f.validated(t, "100") // total 103

	_, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodWallet})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	stored := f.reload(t, tx.ID)
	assert.Equal(t, domain.TransactionValidated, stored.Status)
	assert.Equal(t, domain.ProviderNone, stored.Provider)
	w, err := f.wallets.Get(ctx, f.scope, f.sender.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", w.Balance.StringFixed(2))
}

func TestInitiate_RequiresValidatedOwnedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.create(t, "10")
	validated := f.validated(t, "10")

	_, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: pending.ID, Method: MethodProviderB})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.stranger.ID, TransactionID: validated.ID, Method: MethodProviderB})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: validated.ID, Method: "CARD"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.payments.Initiate(ctx, f.other, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: validated.ID, Method: MethodProviderB})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInitiate_ProviderAIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.validated(t, "100")
	in := InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderA}

	first, err := f.payments.Initiate(ctx, f.scope, in)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionValidated, first.Status)
	assert.Equal(t, domain.ProviderStatusPending, first.ProviderStatus)
	assert.Regexp(t, `^PA-`, first.ProviderRef)

	second, err := f.payments.Initiate(ctx, f.scope, in)
	require.NoError(t, err)
	assert.Equal(t, first.ProviderRef, second.ProviderRef)

	assert.Len(t, pendingJobs(t, f), 1)
	assert.Len(t, f.scheduler.scheduled(), 1)

	// switching rails while a reference is pending is refused
	_, err = f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderB})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestInitiate_ProviderBWaitsForStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.validated(t, "100")

	res, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderB})
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderB, res.Provider)
	assert.Regexp(t, `^PB-`, res.ProviderRef)
	assert.Empty(t, pendingJobs(t, f))
	assert.Empty(t, f.scheduler.scheduled())

	status, err := f.payments.Status(ctx, f.scope, f.sender.ID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ProviderRef, status.ProviderRef)
	assert.Equal(t, domain.TransactionValidated, status.Status)
}

func countOf(types []string, want string) int {
	n := 0
	for _, typ := range types {
		if typ == want {
			n++
		}
	}
	return n
}

func TestInitiate_PaidTransactionReturnsSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fund(t, f, "150")
	tx := f.validated(t, "100")
	in := InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodWallet}

	first, err := f.payments.Initiate(ctx, f.scope, in)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionPaid, first.Status)

	retry, err := f.payments.Initiate(ctx, f.scope, in)
	require.NoError(t, err)
	assert.Equal(t, first.ProviderRef, retry.ProviderRef)
	assert.Equal(t, domain.TransactionPaid, retry.Status)
	assert.Equal(t, domain.ProviderDirect, retry.Provider)

	// another rail on a settled transaction answers with the same settlement
	other, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderA})
	require.NoError(t, err)
	assert.Equal(t, first.ProviderRef, other.ProviderRef)
	assert.Empty(t, pendingJobs(t, f))

	w, err := f.wallets.Get(ctx, f.scope, f.sender.ID)
	require.NoError(t, err)
	assert.Equal(t, "47.00", w.Balance.StringFixed(2))
	assert.Equal(t, 1, countOf(f.pub.types(), events.TransactionPaid))
}

func TestInitiate_StaffPaidTransactionReturnsSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.paid(t, "100")

	for _, method := range []PaymentMethod{MethodProviderB, MethodWallet} {
		res, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: paid.ID, Method: method})
		require.NoError(t, err, method)
		assert.Equal(t, domain.TransactionPaid, res.Status)
		assert.Equal(t, domain.ProviderB, res.Provider)
		assert.Equal(t, paid.ProviderRef, res.ProviderRef)
	}
}

func TestInitiate_CancelledTransactionIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.validated(t, "100")
	_, err := f.transactions.AdminTransition(ctx, f.scope, f.admin.ID, tx.ID, domain.TransactionCancelled)
	require.NoError(t, err)

	for _, method := range []PaymentMethod{MethodWallet, MethodProviderA, MethodProviderB} {
		_, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: method})
		assert.ErrorIs(t, err, domain.ErrInvalidState, method)
	}
}

func TestInitiate_WalletLostRaceReturnsWinnerSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fund(t, f, "150")
	tx := f.validated(t, "100")

	// a competing request settles the row right after this one reads it
	var once sync.Once
	require.NoError(t, f.scope.DB.Callback().Query().After("gorm:query").Register("test:winner", func(d *gorm.DB) {
		if d.Statement.Table != "transactions" {
			return
		}
		once.Do(func() {
			_, err := d.Statement.ConnPool.ExecContext(d.Statement.Context,
				"UPDATE transactions SET status = ?, provider = ?, provider_ref = ?, provider_status = ?, paid_at = ? WHERE id = ?",
				string(domain.TransactionPaid), string(domain.ProviderDirect), "WL-WINNER", string(domain.ProviderStatusSuccess), time.Now(), tx.ID)
			require.NoError(t, err)
		})
	}))

	res, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodWallet})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionPaid, res.Status)
	assert.Equal(t, "WL-WINNER", res.ProviderRef)

	// the losing debit was rolled back
	w, err := f.wallets.Get(ctx, f.scope, f.sender.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.00", w.Balance.StringFixed(2))
}

func TestCompleteSettlement_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.validated(t, "100")
	res, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderA})
	require.NoError(t, err)
	job := f.scheduler.scheduled()[0]

	require.NoError(t, f.payments.CompleteSettlement(ctx, f.scope, job.ID))

	stored := f.reload(t, tx.ID)
	assert.Equal(t, domain.TransactionPaid, stored.Status)
	assert.Equal(t, domain.ProviderStatusSuccess, stored.ProviderStatus)
	assert.Equal(t, res.ProviderRef, stored.ProviderRef)
	assert.NotNil(t, stored.PaidAt)
	assert.Empty(t, pendingJobs(t, f))

	// a second delivery of the same job changes nothing
	require.NoError(t, f.payments.CompleteSettlement(ctx, f.scope, job.ID))
	assert.Equal(t, domain.TransactionPaid, f.reload(t, tx.ID).Status)
}

func TestCompleteSettlement_Failure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.validated(t, "100")
	fail := false
	_, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderA, SimulateSuccess: &fail})
	require.NoError(t, err)

	require.NoError(t, f.payments.CompleteSettlement(ctx, f.scope, f.scheduler.scheduled()[0].ID))

	stored := f.reload(t, tx.ID)
	assert.Equal(t, domain.TransactionValidated, stored.Status)
	assert.Equal(t, domain.ProviderStatusFailed, stored.ProviderStatus)
	assert.Nil(t, stored.PaidAt)
	assert.True(t, f.loggedAt(logrus.WarnLevel, "Provider settlement failed"))
	assert.Contains(t, f.pub.types(), events.PaymentFailed)

	// a failed attempt may be retried on another rail
	_, err = f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderB})
	require.NoError(t, err)
}

func TestCompleteSettlement_GuardMissLeavesTransactionAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.validated(t, "100")
	_, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderA})
	require.NoError(t, err)
	_, err = f.transactions.AdminTransition(ctx, f.scope, f.admin.ID, tx.ID, domain.TransactionCancelled)
	require.NoError(t, err)

	require.NoError(t, f.payments.CompleteSettlement(ctx, f.scope, f.scheduler.scheduled()[0].ID))

	stored := f.reload(t, tx.ID)
	assert.Equal(t, domain.TransactionCancelled, stored.Status)
	assert.Equal(t, domain.ProviderStatusPending, stored.ProviderStatus)
	assert.Nil(t, stored.PaidAt)
	assert.True(t, f.loggedAt(logrus.InfoLevel, "Settlement skipped, transaction no longer awaits this reference"))

	var job domain.SettlementJob
	require.NoError(t, f.scope.DB.First(&job).Error)
	assert.Equal(t, domain.SettlementJobSkipped, job.Status)
}

func TestCompleteSettlement_UnknownJob(t *testing.T) {
	f := newFixture(t)
	err := f.payments.CompleteSettlement(context.Background(), f.scope, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecoverPending_RequeuesOnlyPendingJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		tx := f.validated(t, "10")
		_, err := f.payments.Initiate(ctx, f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderA})
		require.NoError(t, err)
	}
	done := f.scheduler.scheduled()[0]
	require.NoError(t, f.payments.CompleteSettlement(ctx, f.scope, done.ID))

	// a fresh process has an empty queue
	restarted := &recordingScheduler{}
	payments := NewPayments(restarted, time.Minute, f.pub, f.log)

	n, err := payments.RecoverPending(ctx, f.scope)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, restarted.scheduled(), 1)
	assert.NotEqual(t, done.ID, restarted.scheduled()[0].ID)
	assert.Equal(t, "ACME", restarted.scheduled()[0].Tenant.Code)

	n, err = payments.RecoverPending(ctx, f.other)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSettlementHandler_RunsThroughRouterAndQueue(t *testing.T) {
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "acme.db")
	gdb, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	f := newFixtureOn(t, gdb, dsn)

	router := db.NewRouter(nil, f.log)
	defer router.Shutdown(context.Background())
	queue := settlement.NewQueue(f.log, 1)
	payments := NewPayments(queue, 10*time.Millisecond, f.pub, f.log)
	queue.Start(payments.SettlementHandler(router))
	defer queue.Stop(context.Background())

	tx := f.validated(t, "100")
	_, err = payments.Initiate(context.Background(), f.scope, InitiatePaymentInput{UserID: f.sender.ID, TransactionID: tx.ID, Method: MethodProviderA})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.reload(t, tx.ID).Status == domain.TransactionPaid
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, router.Len())
}
