package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remittance_system/internal/domain"
	"remittance_system/internal/events"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Wallets funds the WALLET payment rail.
type Wallets struct {
	notify notifier
}

// NewWallets builds the wallet service
func NewWallets(pub events.Publisher, log logrus.FieldLogger) *Wallets {
	return &Wallets{notify: newNotifier(pub, log)}
}

// Get returns the user's wallet
func (s *Wallets) Get(ctx context.Context, scope Scope, userID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	err := scope.scoped(ctx, &domain.Wallet{}).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("wallet of user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreditInput is the allow-listed input of Credit.
type CreditInput struct {
	UserID   uint
	Amount   decimal.Decimal
	Currency string
}

// Credit adds funds to a user's wallet on behalf of staff, opening the wallet
// on first credit.
func (s *Wallets) Credit(ctx context.Context, scope Scope, actorID uint, in CreditInput) (*domain.Wallet, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if !validAmount(in.Amount) {
		return nil, fmt.Errorf("%w: amount must be positive with at most two decimals", domain.ErrValidation)
	}
	if !currencyPattern.MatchString(currency) {
		return nil, fmt.Errorf("%w: currency must be a three letter code", domain.ErrValidation)
	}
	actor, err := Authorize(ctx, scope, actorID, domain.PermManageWallets)
	if err != nil {
		return nil, err
	}
	var owner domain.User
	err = scope.scoped(ctx, &domain.User{}).Where("id = ?", in.UserID).First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", in.UserID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	err = scope.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := scope.with(tx)
		var w domain.Wallet
		ferr := inner.scoped(ctx, &domain.Wallet{}).Where("user_id = ?", in.UserID).First(&w).Error
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			return tx.Create(&domain.Wallet{
				TenantID: scope.Tenant.TenantID,
				UserID:   in.UserID,
				Balance:  in.Amount,
				Currency: currency,
			}).Error
		}
		if ferr != nil {
			return ferr
		}
		if w.Currency != currency {
			return fmt.Errorf("%w: wallet holds %s", domain.ErrValidation, w.Currency)
		}
		return inner.scoped(ctx, &domain.Wallet{}).
			Where("id = ?", w.ID).
			Update("balance", gorm.Expr("balance + ?", in.Amount)).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: wallet opened concurrently, retry", domain.ErrStaleState)
	}
	if err != nil {
		return nil, err
	}

	s.notify.log.WithFields(scope.fields()).WithFields(logrus.Fields{
		"user_id":  in.UserID,
		"amount":   in.Amount.String(),
		"actor_id": actor.ID,
	}).Info("Wallet credited")
	return s.Get(ctx, scope, in.UserID)
}
