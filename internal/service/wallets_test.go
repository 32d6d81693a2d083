package service

import (
	"context"
	"testing"

	"remittance_system/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wallets.Get(ctx, f.scope, f.sender.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	w, err := f.wallets.Credit(ctx, f.scope, f.admin.ID, CreditInput{UserID: f.sender.ID, Amount: decimal.RequireFromString("25.50"), Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "25.50", w.Balance.StringFixed(2))
	assert.Equal(t, "USD", w.Currency)

	w, err = f.wallets.Credit(ctx, f.scope, f.admin.ID, CreditInput{UserID: f.sender.ID, Amount: decimal.RequireFromString("4.50"), Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "30.00", w.Balance.StringFixed(2))

	_, err = f.wallets.Credit(ctx, f.scope, f.admin.ID, CreditInput{UserID: f.sender.ID, Amount: decimal.RequireFromString("1"), Currency: "EUR"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.wallets.Credit(ctx, f.scope, f.sender.ID, CreditInput{UserID: f.sender.ID, Amount: decimal.RequireFromString("1"), Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.wallets.Credit(ctx, f.scope, f.admin.ID, CreditInput{UserID: f.foreigner.ID, Amount: decimal.RequireFromString("1"), Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.wallets.Credit(ctx, f.scope, f.admin.ID, CreditInput{UserID: f.sender.ID, Amount: decimal.RequireFromString("0.001"), Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := Authorize(ctx, f.scope, f.admin.ID, domain.PermManageWallets)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, u.ID)

	_, err = Authorize(ctx, f.scope, f.sender.ID, domain.PermManageWallets)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// staff of another tenant hold no rights here
	_, err = Authorize(ctx, f.scope, f.foreigner.ID, domain.PermSendMoney)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = Authorize(ctx, f.scope, 9999, domain.PermSendMoney)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
