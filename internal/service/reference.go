package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"remittance_system/internal/domain"
)

// newTransactionReference returns TX-YYYYMMDD-XXXXXXXX
func newTransactionReference(now time.Time) string {
	return "TX-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// newProviderReference returns the opaque reference a rail would assign
func newProviderReference(p domain.Provider) string {
	prefix := "PX"
	switch p {
	case domain.ProviderDirect:
		prefix = "WL"
	case domain.ProviderA:
		prefix = "PA"
	case domain.ProviderB:
		prefix = "PB"
	}
	return prefix + "-" + uuid.NewString()
}

// feeFor computes the fee frozen on a transaction at creation
func feeFor(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(domain.FeeRate).Round(2)
}

// validAmount accepts positive amounts with at most two decimals
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}
