package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remittance_system/internal/db"
	"remittance_system/internal/domain"
	"remittance_system/internal/events"
	"remittance_system/internal/settlement"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentMethod is the rail requested at initiation.
type PaymentMethod string

const (
	MethodWallet    PaymentMethod = "WALLET"
	MethodProviderA PaymentMethod = "PROVIDER_A"
	MethodProviderB PaymentMethod = "PROVIDER_B"
)

// ParsePaymentMethod validates a raw method coming from a request.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case MethodWallet, MethodProviderA, MethodProviderB:
		return m, true
	default:
		return "", false
	}
}

func (m PaymentMethod) provider() domain.Provider {
	switch m {
	case MethodWallet:
		return domain.ProviderDirect
	case MethodProviderA:
		return domain.ProviderA
	default:
		return domain.ProviderB
	}
}

// Scheduler accepts settlement jobs once their row is committed.
type Scheduler interface {
	Schedule(job settlement.Job) bool
}

// Payments initiates settlement on a rail and completes deferred settlements.
type Payments struct {
	notify    notifier
	scheduler Scheduler
	delay     time.Duration
}

// NewPayments builds the payment service. A nil scheduler leaves provider-A
// jobs in the table for the next recovery sweep.
func NewPayments(scheduler Scheduler, delay time.Duration, pub events.Publisher, log logrus.FieldLogger) *Payments {
	return &Payments{notify: newNotifier(pub, log), scheduler: scheduler, delay: delay}
}

// InitiatePaymentInput is the allow-listed input of Initiate.
type InitiatePaymentInput struct {
	UserID          uint
	TransactionID   uint
	Method          PaymentMethod
	SimulateSuccess *bool // provider A outcome, defaults to success
}

// PaymentResult is the payment view of a transaction
type PaymentResult struct {
	TransactionID  uint                     `json:"transaction_id"`
	Reference      string                   `json:"reference"`
	Status         domain.TransactionStatus `json:"status"`
	PaymentMethod  string                   `json:"payment_method"`
	Provider       domain.Provider          `json:"provider"`
	ProviderRef    string                   `json:"provider_ref"`
	ProviderStatus domain.ProviderStatus    `json:"provider_status"`
	PaidAt         *time.Time               `json:"paid_at"`
}

func resultOf(tx *domain.Transaction) PaymentResult {
	return PaymentResult{
		TransactionID:  tx.ID,
		Reference:      tx.Reference,
		Status:         tx.Status,
		PaymentMethod:  tx.PaymentMethod,
		Provider:       tx.Provider,
		ProviderRef:    tx.ProviderRef,
		ProviderStatus: tx.ProviderStatus,
		PaidAt:         tx.PaidAt,
	}
}

// Initiate starts payment of a VALIDATED transaction owned by the caller.
//
// WALLET debits the sender's wallet and settles at once. PROVIDER_A records a
// pending provider reference and schedules the outcome after the configured
// delay. PROVIDER_B records a pending reference and waits for staff. Initiating
// a PAID transaction, or repeating an initiation whose provider reference is
// already pending, returns the recorded state without side effects.
func (p *Payments) Initiate(ctx context.Context, scope Scope, in InitiatePaymentInput) (PaymentResult, error) {
	if _, ok := ParsePaymentMethod(string(in.Method)); !ok {
		return PaymentResult{}, fmt.Errorf("%w: unsupported payment method %q", domain.ErrValidation, in.Method)
	}
	current, err := ownedTransaction(ctx, scope, in.TransactionID, in.UserID)
	if err != nil {
		return PaymentResult{}, err
	}
	if r, ok := idempotentResult(current, in.Method); ok {
		return r, nil
	}
	if current.Status == domain.TransactionPaid {
		return resultOf(current), nil // already settled, whatever rail settled it
	}
	if current.Status != domain.TransactionValidated {
		return PaymentResult{}, fmt.Errorf("%w: transaction is %s", domain.ErrInvalidState, current.Status)
	}
	if current.ProviderStatus == domain.ProviderStatusPending {
		return PaymentResult{}, fmt.Errorf("%w: payment already initiated with %s", domain.ErrInvalidState, current.Provider)
	}

	simulate := true
	if in.SimulateSuccess != nil {
		simulate = *in.SimulateSuccess
	}

	switch in.Method {
	case MethodWallet:
		err = p.payFromWallet(ctx, scope, current)
	default:
		err = p.submitToProvider(ctx, scope, current, in.Method, simulate)
	}
	if errors.Is(err, domain.ErrStaleState) {
		// another request initiated first; answer with what it recorded
		latest, ferr := findTransaction(ctx, scope, current.ID)
		if ferr != nil {
			return PaymentResult{}, ferr
		}
		if r, ok := idempotentResult(latest, in.Method); ok {
			return r, nil
		}
		if latest.Status == domain.TransactionPaid {
			return resultOf(latest), nil
		}
		return PaymentResult{}, fmt.Errorf("%w: transaction changed during initiation", domain.ErrInvalidState)
	}
	if err != nil {
		return PaymentResult{}, err
	}

	updated, err := findTransaction(ctx, scope, current.ID)
	if err != nil {
		return PaymentResult{}, err
	}
	p.notify.log.WithFields(scope.fields()).WithFields(logrus.Fields{
		"transaction_id": updated.ID,
		"method":         in.Method,
		"provider_ref":   updated.ProviderRef,
		"status":         updated.Status,
	}).Info("Payment initiated")
	if updated.Status == domain.TransactionPaid {
		p.notify.publish(ctx, scope, events.TransactionPaid, updated.ID, updated.Reference, string(updated.Status), &in.UserID)
	} else {
		p.notify.publish(ctx, scope, events.PaymentInitiated, updated.ID, updated.Reference, string(updated.ProviderStatus), &in.UserID)
	}
	return resultOf(updated), nil
}

// Status returns the payment view of one of the caller's transactions.
func (p *Payments) Status(ctx context.Context, scope Scope, userID, transactionID uint) (PaymentResult, error) {
	tx, err := ownedTransaction(ctx, scope, transactionID, userID)
	if err != nil {
		return PaymentResult{}, err
	}
	return resultOf(tx), nil
}

func ownedTransaction(ctx context.Context, scope Scope, id, userID uint) (*domain.Transaction, error) {
	tx, err := findTransaction(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, fmt.Errorf("transaction %d: %w", id, domain.ErrForbidden)
	}
	return tx, nil
}

// idempotentResult reports whether tx already carries a pending reference on
// the rail that method selects.
func idempotentResult(tx *domain.Transaction, method PaymentMethod) (PaymentResult, bool) {
	if method == MethodWallet {
		return PaymentResult{}, false
	}
	if tx.Status == domain.TransactionValidated &&
		tx.Provider == method.provider() &&
		tx.ProviderRef != "" &&
		tx.ProviderStatus == domain.ProviderStatusPending {
		return resultOf(tx), true
	}
	return PaymentResult{}, false
}

func (p *Payments) payFromWallet(ctx context.Context, scope Scope, current *domain.Transaction) error {
	now := p.notify.now()
	return scope.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := scope.with(tx)
		res := inner.scoped(ctx, &domain.Wallet{}).
			Where("user_id = ? AND currency = ? AND balance >= ?", current.UserID, current.Currency, current.Total).
			Update("balance", gorm.Expr("balance - ?", current.Total))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: wallet cannot cover %s %s", domain.ErrInsufficientFunds, current.Total.StringFixed(2), current.Currency)
		}

		res = inner.scoped(ctx, &domain.Transaction{}).
			Where("id = ? AND status = ? AND provider_status = ?", current.ID, domain.TransactionValidated, current.ProviderStatus).
			Updates(map[string]any{
				"status":          domain.TransactionPaid,
				"payment_method":  string(MethodWallet),
				"provider":        domain.ProviderDirect,
				"provider_ref":    newProviderReference(domain.ProviderDirect),
				"provider_status": domain.ProviderStatusSuccess,
				"paid_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrStaleState // rolls the debit back
		}
		return nil
	})
}

func (p *Payments) submitToProvider(ctx context.Context, scope Scope, current *domain.Transaction, method PaymentMethod, simulate bool) error {
	provider := method.provider()
	ref := newProviderReference(provider)
	now := p.notify.now()
	var job *domain.SettlementJob

	err := scope.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := scope.with(tx)
		res := inner.scoped(ctx, &domain.Transaction{}).
			Where("id = ? AND status = ? AND provider_status = ?", current.ID, domain.TransactionValidated, current.ProviderStatus).
			Updates(map[string]any{
				"payment_method":  string(method),
				"provider":        provider,
				"provider_ref":    ref,
				"provider_status": domain.ProviderStatusPending,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrStaleState
		}
		if provider != domain.ProviderA {
			return nil
		}
		job = &domain.SettlementJob{
			TenantID:        scope.Tenant.TenantID,
			TransactionID:   current.ID,
			ProviderRef:     ref,
			SimulateSuccess: simulate,
			DueAt:           now.Add(p.delay),
			Status:          domain.SettlementJobPending,
		}
		return tx.Create(job).Error
	})
	if err != nil {
		return err
	}
	if job != nil && p.scheduler != nil {
		p.scheduler.Schedule(settlement.Job{ID: job.ID, Tenant: scope.Tenant, DueAt: job.DueAt})
	}
	return nil
}

// errJobClaimed rolls back a settlement another worker already completed.
var errJobClaimed = errors.New("settlement job already processed")

// CompleteSettlement applies the outcome of a due provider-A job.
//
// The transaction changes only while it is still VALIDATED, on provider A,
// with the job's reference and a PENDING provider status. When any of that no
// longer holds the job is marked skipped and nothing else changes.
func (p *Payments) CompleteSettlement(ctx context.Context, scope Scope, jobID uint) error {
	var job domain.SettlementJob
	err := scope.scoped(ctx, &domain.SettlementJob{}).Where("id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("settlement job %d: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if job.Status != domain.SettlementJobPending {
		return nil
	}

	now := p.notify.now()
	updates := map[string]any{"provider_status": domain.ProviderStatusFailed}
	if job.SimulateSuccess {
		updates = map[string]any{
			"status":          domain.TransactionPaid,
			"provider_status": domain.ProviderStatusSuccess,
			"paid_at":         now,
		}
	}

	applied := false
	err = scope.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := scope.with(tx)
		res := inner.scoped(ctx, &domain.Transaction{}).
			Where("id = ? AND status = ? AND provider = ? AND provider_ref = ? AND provider_status = ?",
				job.TransactionID, domain.TransactionValidated, domain.ProviderA, job.ProviderRef, domain.ProviderStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected == 1

		outcome := domain.SettlementJobDone
		if !applied {
			outcome = domain.SettlementJobSkipped
		}
		res = inner.scoped(ctx, &domain.SettlementJob{}).
			Where("id = ? AND status = ?", job.ID, domain.SettlementJobPending).
			Updates(map[string]any{"status": outcome, "processed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errJobClaimed
		}
		return nil
	})
	if errors.Is(err, errJobClaimed) {
		return nil
	}
	if err != nil {
		return err
	}

	fields := scope.fields()
	fields["transaction_id"] = job.TransactionID
	fields["provider_ref"] = job.ProviderRef
	if !applied {
		p.notify.log.WithFields(fields).Info("Settlement skipped, transaction no longer awaits this reference")
		return nil
	}
	if job.SimulateSuccess {
		p.notify.log.WithFields(fields).Info("Provider settlement succeeded")
		p.notify.publish(ctx, scope, events.TransactionPaid, job.TransactionID, job.ProviderRef, string(domain.TransactionPaid), nil)
	} else {
		p.notify.log.WithFields(fields).Warn("Provider settlement failed")
		p.notify.publish(ctx, scope, events.PaymentFailed, job.TransactionID, job.ProviderRef, string(domain.ProviderStatusFailed), nil)
	}
	return nil
}

// RecoverPending hands every pending settlement job of the tenant to the
// scheduler. It returns the number of jobs newly queued.
func (p *Payments) RecoverPending(ctx context.Context, scope Scope) (int, error) {
	if p.scheduler == nil {
		return 0, nil
	}
	var jobs []domain.SettlementJob
	err := scope.scoped(ctx, &domain.SettlementJob{}).
		Where("status = ?", domain.SettlementJobPending).
		Order("due_at").
		Find(&jobs).Error
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, job := range jobs {
		if p.scheduler.Schedule(settlement.Job{ID: job.ID, Tenant: scope.Tenant, DueAt: job.DueAt}) {
			queued++
		}
	}
	if queued > 0 {
		p.notify.log.WithFields(scope.fields()).WithField("jobs", queued).Info("Recovered pending settlements")
	}
	return queued, nil
}

// SettlementHandler runs due jobs against the tenant store the router leases.
func (p *Payments) SettlementHandler(router *db.Router) settlement.HandlerFunc {
	return func(ctx context.Context, job settlement.Job) error {
		h, err := router.Acquire(ctx, job.Tenant.RoutingKey, job.Tenant.ConnString)
		if err != nil {
			return err
		}
		defer h.Release()
		return p.CompleteSettlement(ctx, NewScope(h.DB, job.Tenant), job.ID)
	}
}
