package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet Model
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`                                // Primary key
	TenantID  uint            `gorm:"not null;index" json:"tenant_id"`                     // Owning tenant
	UserID    uint            `gorm:"uniqueIndex" json:"user_id"`                          // One wallet per user
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // Wallet balance
	Currency  string          `gorm:"size:3;not null" json:"currency"`                     // ISO currency code
	UpdatedAt time.Time       `json:"updated_at"`                                          // Last balance change
}

// TableName pins the wallets table name
func (Wallet) TableName() string {
	return "wallets"
}
