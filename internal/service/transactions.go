package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"remittance_system/internal/domain"
	"remittance_system/internal/events"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// referenceAttempts bounds retries on a reference collision
const referenceAttempts = 3

// Transactions owns the transaction lifecycle.
type Transactions struct {
	notify notifier
}

// NewTransactions builds the transaction service
func NewTransactions(pub events.Publisher, log logrus.FieldLogger) *Transactions {
	return &Transactions{notify: newNotifier(pub, log)}
}

// CreateTransactionInput is the allow-listed input of Create.
type CreateTransactionInput struct {
	SenderID      uint
	BeneficiaryID uint
	Amount        decimal.Decimal
	Currency      string
	PayoutMethod  string
}

// Create opens a PENDING transaction with its fee frozen at 3% of the amount.
func (s *Transactions) Create(ctx context.Context, scope Scope, in CreateTransactionInput) (*domain.Transaction, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	payout := strings.TrimSpace(in.PayoutMethod)
	switch {
	case !validAmount(in.Amount):
		return nil, fmt.Errorf("%w: amount must be positive with at most two decimals", domain.ErrValidation)
	case !currencyPattern.MatchString(currency):
		return nil, fmt.Errorf("%w: currency must be a three letter code", domain.ErrValidation)
	case payout == "":
		return nil, fmt.Errorf("%w: payout method is required", domain.ErrValidation)
	}

	var sender domain.User
	err := scope.scoped(ctx, &domain.User{}).Where("id = ?", in.SenderID).First(&sender).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("sender %d: %w", in.SenderID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !sender.Role.Can(domain.PermSendMoney) {
		return nil, fmt.Errorf("sender %d: %w", in.SenderID, domain.ErrForbidden)
	}

	// Load the beneficiary unscoped so a foreign one is reported as forbidden.
	var beneficiary domain.Beneficiary
	err = scope.DB.WithContext(ctx).Where("id = ?", in.BeneficiaryID).First(&beneficiary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("beneficiary %d: %w", in.BeneficiaryID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if beneficiary.TenantID != scope.Tenant.TenantID || beneficiary.UserID != in.SenderID {
		return nil, fmt.Errorf("beneficiary %d: %w", in.BeneficiaryID, domain.ErrForbidden)
	}

	fee := feeFor(in.Amount)
	tx := domain.Transaction{
		TenantID:      scope.Tenant.TenantID,
		UserID:        in.SenderID,
		BeneficiaryID: beneficiary.ID,
		Amount:        in.Amount,
		Fee:           fee,
		Total:         in.Amount.Add(fee),
		Currency:      currency,
		PayoutMethod:  payout,
		Status:        domain.TransactionPending,
	}
	for attempt := 1; ; attempt++ {
		tx.ID = 0
		tx.Reference = newTransactionReference(s.notify.now())
		err = scope.DB.WithContext(ctx).Create(&tx).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < referenceAttempts {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.notify.log.WithFields(scope.fields()).WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"reference":      tx.Reference,
		"user_id":        tx.UserID,
		"amount":         tx.Amount.String(),
		"fee":            tx.Fee.String(),
	}).Info("Transaction created")
	s.notify.publish(ctx, scope, events.TransactionCreated, tx.ID, tx.Reference, string(tx.Status), &in.SenderID)
	return &tx, nil
}

// ListForSender returns the sender's transactions, newest first.
func (s *Transactions) ListForSender(ctx context.Context, scope Scope, senderID uint) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := scope.scoped(ctx, &domain.Transaction{}).
		Where("user_id = ?", senderID).
		Order("id DESC").
		Find(&txs).Error
	return txs, err
}

// GetForSender returns one of the sender's transactions. A transaction that
// exists but belongs to someone else is reported as not found.
func (s *Transactions) GetForSender(ctx context.Context, scope Scope, id, senderID uint) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := scope.scoped(ctx, &domain.Transaction{}).
		Where("id = ? AND user_id = ?", id, senderID).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransactionFilter narrows the admin listing
type TransactionFilter struct {
	Status   domain.TransactionStatus
	Page     int
	PageSize int
}

// AdminList pages through every transaction of the tenant.
func (s *Transactions) AdminList(ctx context.Context, scope Scope, actorID uint, f TransactionFilter) (Page[domain.Transaction], error) {
	if _, err := Authorize(ctx, scope, actorID, domain.PermManageTransactions); err != nil {
		return Page[domain.Transaction]{}, err
	}
	page, size := normalizePage(f.Page, f.PageSize)

	q := scope.scoped(ctx, &domain.Transaction{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[domain.Transaction]{}, err
	}
	var txs []domain.Transaction
	if err := q.Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&txs).Error; err != nil {
		return Page[domain.Transaction]{}, err
	}
	return newPage(txs, page, size, total), nil
}

// AdminTransition moves a transaction to target on behalf of staff.
//
// A repeated request for the current non-terminal status is a no-op. Moving to
// PAID requires a confirmed provider outcome when the rail settles
// asynchronously. Cancelling fails when a withdrawal references the
// transaction.
func (s *Transactions) AdminTransition(ctx context.Context, scope Scope, actorID, id uint, target domain.TransactionStatus) (*domain.Transaction, error) {
	actor, err := Authorize(ctx, scope, actorID, domain.PermManageTransactions)
	if err != nil {
		return nil, err
	}
	current, err := findTransaction(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	from := current.Status
	if from == target && !from.IsTerminal() {
		return current, nil
	}
	if !from.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, from, target)
	}

	now := s.notify.now()
	updates := map[string]any{"status": target}
	q := scope.scoped(ctx, &domain.Transaction{}).Where("id = ? AND status = ?", id, from)
	switch target {
	case domain.TransactionPaid:
		if current.Provider == domain.ProviderA {
			if current.ProviderStatus != domain.ProviderStatusSuccess {
				return nil, fmt.Errorf("%w: provider has not confirmed settlement", domain.ErrInvalidState)
			}
			q = q.Where("provider_status = ?", domain.ProviderStatusSuccess)
		}
		updates["paid_at"] = now
		updates["provider_status"] = domain.ProviderStatusSuccess
	case domain.TransactionCancelled:
		var withdrawals int64
		if err := scope.scoped(ctx, &domain.Withdrawal{}).Where("transaction_id = ?", id).Count(&withdrawals).Error; err != nil {
			return nil, err
		}
		if withdrawals > 0 {
			return nil, fmt.Errorf("%w: transaction %d has a withdrawal", domain.ErrConflict, id)
		}
		q = q.Where("NOT EXISTS (SELECT 1 FROM withdrawals w WHERE w.transaction_id = transactions.id)")
		updates["cancelled_at"] = now
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("transaction %d left %s: %w", id, from, domain.ErrStaleState)
	}

	updated, err := findTransaction(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	s.notify.log.WithFields(scope.fields()).WithFields(logrus.Fields{
		"transaction_id": id,
		"from":           from,
		"to":             target,
		"actor_id":       actor.ID,
	}).Info("Transaction status changed")
	s.notify.publish(ctx, scope, transactionEvent(target), id, updated.Reference, string(target), &actor.ID)
	return updated, nil
}

func findTransaction(ctx context.Context, scope Scope, id uint) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := scope.scoped(ctx, &domain.Transaction{}).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("transaction %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func transactionEvent(status domain.TransactionStatus) string {
	switch status {
	case domain.TransactionValidated:
		return events.TransactionValidated
	case domain.TransactionPaid:
		return events.TransactionPaid
	case domain.TransactionCancelled:
		return events.TransactionCancelled
	default:
		return events.TransactionCreated
	}
}
