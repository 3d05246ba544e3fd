package models

import "time"

// Customer is the local customer record. Provider customer events upsert the
// external-reference column, scoped by tenant.
type Customer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;index;index:ux_customers_tenant_ref,unique,priority:1" json:"tenant_id"`
	ExternalRef string    `gorm:"type:varchar(191);not null;index:ux_customers_tenant_ref,unique,priority:2" json:"external_ref"`
	Name        string    `gorm:"type:varchar(150)" json:"name"`
	Email       string    `gorm:"type:varchar(200);index" json:"email"`
	Phone       string    `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
