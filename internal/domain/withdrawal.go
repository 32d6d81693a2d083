package domain

import "time"

// WithdrawalStatus is the lifecycle state of a Withdrawal.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "PENDING"
	WithdrawalApproved WithdrawalStatus = "APPROVED"
	WithdrawalPaid     WithdrawalStatus = "PAID"
	WithdrawalRejected WithdrawalStatus = "REJECTED"
)

// ParseWithdrawalStatus validates a raw status coming from a request.
func ParseWithdrawalStatus(raw string) (WithdrawalStatus, bool) {
	status := WithdrawalStatus(raw)
	switch status {
	case WithdrawalPending, WithdrawalApproved, WithdrawalPaid, WithdrawalRejected:
		return status, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no transition may leave the status.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalPaid || s == WithdrawalRejected
}

// CanTransitionTo reports whether s -> next is in the withdrawal table.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalPending:
		return next == WithdrawalApproved || next == WithdrawalRejected
	case WithdrawalApproved:
		return next == WithdrawalPaid || next == WithdrawalRejected
	default:
		return false
	}
}

// Withdrawal Model
type Withdrawal struct {
	ID            uint             `gorm:"primaryKey" json:"id"`                                 // Primary key
	TenantID      uint             `gorm:"not null;index" json:"tenant_id"`                      // Owning tenant
	UserID        uint             `gorm:"not null;index" json:"user_id"`                        // Requesting user
	TransactionID uint             `gorm:"not null;uniqueIndex" json:"transaction_id"`           // At most one withdrawal per transaction
	Method        string           `gorm:"size:32;not null" json:"method"`                       // Payout method
	Status        WithdrawalStatus `gorm:"size:16;not null;index;default:PENDING" json:"status"` // Lifecycle state
	RequestedAt   time.Time        `gorm:"not null" json:"requested_at"`                         // Creation time
	ProcessedAt   *time.Time       `json:"processed_at"`                                         // Last staff decision
	ProcessedBy   *uint            `json:"processed_by"`                                         // Staff member who decided
	UpdatedAt     time.Time        `json:"updated_at"`                                           // Last mutation
}

// TableName pins the withdrawals table name
func (Withdrawal) TableName() string {
	return "withdrawals"
}
