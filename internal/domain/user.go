package domain

import "time"

// User Model
//
// Users are issued by the identity service; this system only reads them to
// check ownership and capabilities.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                                                // Primary key
	TenantID  uint      `gorm:"not null;index;uniqueIndex:idx_users_tenant_email" json:"tenant_id"`  // Owning tenant
	Email     string    `gorm:"size:191;not null;uniqueIndex:idx_users_tenant_email" json:"email"`   // Unique per tenant
	FullName  string    `gorm:"size:150" json:"full_name"`                                           // Display name
	Role      Role      `gorm:"size:32;not null;default:USER" json:"role"`                           // USER, ADMIN or SUPER_ADMIN
	CreatedAt time.Time `json:"created_at"`                                                          // Creation timestamp
}

// TableName pins the users table name
func (User) TableName() string {
	return "users"
}

// Beneficiary Model
type Beneficiary struct {
	ID            uint      `gorm:"primaryKey" json:"id"`               // Primary key
	TenantID      uint      `gorm:"not null;index" json:"tenant_id"`    // Owning tenant
	UserID        uint      `gorm:"not null;index" json:"user_id"`      // Sender that registered the beneficiary
	FullName      string    `gorm:"size:150;not null" json:"full_name"` // Receiver name
	Country       string    `gorm:"size:2" json:"country"`              // ISO country code
	PayoutAccount string    `gorm:"size:64" json:"payout_account"`      // Account or phone number used for payout
	CreatedAt     time.Time `json:"created_at"`                         // Creation timestamp
}

// TableName pins the beneficiaries table name
func (Beneficiary) TableName() string {
	return "beneficiaries"
}
