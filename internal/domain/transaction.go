package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeRate is the share of the amount charged as fee at creation.
var FeeRate = decimal.RequireFromString("0.03")

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionValidated TransactionStatus = "VALIDATED"
	TransactionPaid      TransactionStatus = "PAID"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// ParseTransactionStatus validates a raw status coming from a request.
func ParseTransactionStatus(raw string) (TransactionStatus, bool) {
	status := TransactionStatus(raw)
	switch status {
	case TransactionPending, TransactionValidated, TransactionPaid, TransactionCancelled:
		return status, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no transition may leave the status.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionPaid || s == TransactionCancelled
}

// CanTransitionTo reports whether s -> next is in the transaction table.
// Self-transitions are not part of the table.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TransactionPending:
		return next == TransactionValidated || next == TransactionCancelled
	case TransactionValidated:
		return next == TransactionPaid || next == TransactionCancelled
	default:
		return false
	}
}

// Provider is the settlement rail used for a transaction.
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderDirect Provider = "DIRECT"     // wallet debit, settles synchronously
	ProviderA      Provider = "PROVIDER_A" // async outcome after a fixed delay
	ProviderB      Provider = "PROVIDER_B" // manual staff confirmation
)

// ProviderStatus is the settlement state reported by the provider.
type ProviderStatus string

const (
	ProviderStatusNone    ProviderStatus = ""
	ProviderStatusPending ProviderStatus = "PENDING"
	ProviderStatusSuccess ProviderStatus = "SUCCESS"
	ProviderStatusFailed  ProviderStatus = "FAILED"
)

// Transaction Model
type Transaction struct {
	ID             uint              `gorm:"primaryKey" json:"id"`                                  // Primary key
	TenantID       uint              `gorm:"not null;index" json:"tenant_id"`                       // Owning tenant
	Reference      string            `gorm:"size:32;not null;uniqueIndex" json:"reference"`         // Human readable reference
	UserID         uint              `gorm:"not null;index" json:"user_id"`                         // Sender
	BeneficiaryID  uint              `gorm:"not null;index" json:"beneficiary_id"`                  // Receiver
	Amount         decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`             // Amount sent
	Fee            decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"fee"`                // Frozen at creation
	Total          decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"total"`              // Amount + fee
	Currency       string            `gorm:"size:3;not null" json:"currency"`                       // ISO currency code
	PayoutMethod   string            `gorm:"size:32;not null" json:"payout_method"`                 // How the beneficiary is paid
	Status         TransactionStatus `gorm:"size:16;not null;index;default:PENDING" json:"status"`  // Lifecycle state
	PaymentMethod  string            `gorm:"size:32" json:"payment_method"`                         // Method requested at initiation
	Provider       Provider          `gorm:"size:16" json:"provider"`                               // Settlement rail
	ProviderRef    string            `gorm:"size:64;index" json:"provider_ref"`                     // Opaque provider reference
	ProviderStatus ProviderStatus    `gorm:"size:16" json:"provider_status"`                        // Provider-side outcome
	PaidAt         *time.Time        `json:"paid_at"`                                               // Set iff PAID
	CancelledAt    *time.Time        `json:"cancelled_at"`                                          // Set iff CANCELLED
	CreatedAt      time.Time         `json:"created_at"`                                            // Creation timestamp
	UpdatedAt      time.Time         `json:"updated_at"`                                            // Last mutation
}

// TableName pins the transactions table name
func (Transaction) TableName() string {
	return "transactions"
}
