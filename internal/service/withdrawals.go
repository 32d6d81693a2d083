package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remittance_system/internal/domain"
	"remittance_system/internal/events"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Withdrawals owns payout requests against paid transactions.
type Withdrawals struct {
	notify notifier
}

// NewWithdrawals builds the withdrawal service
func NewWithdrawals(pub events.Publisher, log logrus.FieldLogger) *Withdrawals {
	return &Withdrawals{notify: newNotifier(pub, log)}
}

// CreateWithdrawalInput is the allow-listed input of Create.
type CreateWithdrawalInput struct {
	UserID        uint
	TransactionID uint
	Method        string
}

// Create requests a payout for a PAID transaction owned by the caller. At most
// one withdrawal exists per transaction; the unique index decides races.
func (s *Withdrawals) Create(ctx context.Context, scope Scope, in CreateWithdrawalInput) (*domain.Withdrawal, error) {
	method := strings.TrimSpace(in.Method)
	if method == "" {
		return nil, fmt.Errorf("%w: method is required", domain.ErrValidation)
	}
	if _, err := Authorize(ctx, scope, in.UserID, domain.PermRequestWithdrawal); err != nil {
		return nil, err
	}
	tx, err := ownedTransaction(ctx, scope, in.TransactionID, in.UserID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionPaid {
		return nil, fmt.Errorf("%w: transaction is %s", domain.ErrInvalidState, tx.Status)
	}

	w := domain.Withdrawal{
		TenantID:      scope.Tenant.TenantID,
		UserID:        in.UserID,
		TransactionID: tx.ID,
		Method:        method,
		Status:        domain.WithdrawalPending,
		RequestedAt:   s.notify.now(),
	}
	err = scope.DB.WithContext(ctx).Create(&w).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: transaction %d already has a withdrawal", domain.ErrConflict, tx.ID)
	}
	if err != nil {
		return nil, err
	}

	s.notify.log.WithFields(scope.fields()).WithFields(logrus.Fields{
		"withdrawal_id":  w.ID,
		"transaction_id": tx.ID,
		"user_id":        in.UserID,
	}).Info("Withdrawal requested")
	s.notify.publish(ctx, scope, events.WithdrawalCreated, w.ID, tx.Reference, string(w.Status), &in.UserID)
	return &w, nil
}

// ListMine returns the caller's withdrawals, newest first.
func (s *Withdrawals) ListMine(ctx context.Context, scope Scope, userID uint) ([]domain.Withdrawal, error) {
	var ws []domain.Withdrawal
	err := scope.scoped(ctx, &domain.Withdrawal{}).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&ws).Error
	return ws, err
}

// WithdrawalFilter narrows the admin listing
type WithdrawalFilter struct {
	Status   domain.WithdrawalStatus
	Page     int
	PageSize int
}

// AdminList pages through every withdrawal of the tenant.
func (s *Withdrawals) AdminList(ctx context.Context, scope Scope, actorID uint, f WithdrawalFilter) (Page[domain.Withdrawal], error) {
	if _, err := Authorize(ctx, scope, actorID, domain.PermManageWithdrawals); err != nil {
		return Page[domain.Withdrawal]{}, err
	}
	page, size := normalizePage(f.Page, f.PageSize)

	q := scope.scoped(ctx, &domain.Withdrawal{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[domain.Withdrawal]{}, err
	}
	var ws []domain.Withdrawal
	if err := q.Order("id DESC").Offset((page - 1) * size).Limit(size).Find(&ws).Error; err != nil {
		return Page[domain.Withdrawal]{}, err
	}
	return newPage(ws, page, size, total), nil
}

// AdminTransition moves a withdrawal to target on behalf of staff. PAID is
// only reachable while the linked transaction is PAID at the moment of the write.
func (s *Withdrawals) AdminTransition(ctx context.Context, scope Scope, actorID, id uint, target domain.WithdrawalStatus) (*domain.Withdrawal, error) {
	actor, err := Authorize(ctx, scope, actorID, domain.PermManageWithdrawals)
	if err != nil {
		return nil, err
	}
	current, err := findWithdrawal(ctx, scope, id)
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

	q := scope.scoped(ctx, &domain.Withdrawal{}).Where("id = ? AND status = ?", id, from)
	if target == domain.WithdrawalPaid {
		if err := s.requirePaidTransaction(ctx, scope, current.TransactionID); err != nil {
			return nil, err
		}
		q = q.Where("EXISTS (SELECT 1 FROM transactions t WHERE t.id = withdrawals.transaction_id AND t.status = ?)", domain.TransactionPaid)
	}

	res := q.Updates(map[string]any{
		"status":       target,
		"processed_at": s.notify.now(),
		"processed_by": actor.ID,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if target == domain.WithdrawalPaid {
			if err := s.requirePaidTransaction(ctx, scope, current.TransactionID); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("withdrawal %d left %s: %w", id, from, domain.ErrStaleState)
	}

	updated, err := findWithdrawal(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	s.notify.log.WithFields(scope.fields()).WithFields(logrus.Fields{
		"withdrawal_id": id,
		"from":          from,
		"to":            target,
		"actor_id":      actor.ID,
	}).Info("Withdrawal status changed")
	s.notify.publish(ctx, scope, withdrawalEvent(target), id, "", string(target), &actor.ID)
	return updated, nil
}

func (s *Withdrawals) requirePaidTransaction(ctx context.Context, scope Scope, transactionID uint) error {
	tx, err := findTransaction(ctx, scope, transactionID)
	if err != nil {
		return err
	}
	if tx.Status != domain.TransactionPaid {
		return fmt.Errorf("%w: linked transaction is %s", domain.ErrInvalidState, tx.Status)
	}
	return nil
}

func findWithdrawal(ctx context.Context, scope Scope, id uint) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := scope.scoped(ctx, &domain.Withdrawal{}).Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("withdrawal %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func withdrawalEvent(status domain.WithdrawalStatus) string {
	switch status {
	case domain.WithdrawalApproved:
		return events.WithdrawalApproved
	case domain.WithdrawalPaid:
		return events.WithdrawalPaid
	case domain.WithdrawalRejected:
		return events.WithdrawalRejected
	default:
		return events.WithdrawalCreated
	}
}
