package domain

import "time"

// Client is a tenant as stored in the platform registry.
type Client struct {
	ID               uint      `gorm:"primaryKey" json:"id"`                   // Numeric tenant id
	Code             string    `gorm:"size:64;uniqueIndex;not null" json:"code"` // Canonical uppercase code
	Name             string    `gorm:"size:150;not null" json:"name"`          // Display name
	Active           bool      `gorm:"not null;default:true" json:"active"`    // Disabled tenants fail resolution
	ConnectionString string    `gorm:"size:512" json:"-"`                      // Dedicated store DSN (per-tenant mode)
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName pins the clients table name
func (Client) TableName() string {
	return "clients"
}
