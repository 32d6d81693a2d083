package domain

import "time"

// SettlementJobStatus tracks a scheduled provider settlement.
type SettlementJobStatus string

const (
	SettlementJobPending SettlementJobStatus = "PENDING"
	SettlementJobDone    SettlementJobStatus = "DONE"
	SettlementJobSkipped SettlementJobStatus = "SKIPPED" // guard no longer matched
)

// SettlementJob is the durable record of a deferred provider-A settlement.
// It survives restarts; pending rows are re-enqueued on startup.
type SettlementJob struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	TenantID        uint                `gorm:"not null;index" json:"tenant_id"`
	TransactionID   uint                `gorm:"not null;index" json:"transaction_id"`
	ProviderRef     string              `gorm:"size:64;not null;uniqueIndex" json:"provider_ref"`
	SimulateSuccess bool                `gorm:"not null" json:"simulate_success"`
	DueAt           time.Time           `gorm:"not null;index" json:"due_at"`
	Status          SettlementJobStatus `gorm:"size:16;not null;index;default:PENDING" json:"status"`
	ProcessedAt     *time.Time          `json:"processed_at"`
	CreatedAt       time.Time           `json:"created_at"`
}

// TableName pins the settlement_jobs table name
func (SettlementJob) TableName() string {
	return "settlement_jobs"
}
