package models

import "time"

const (
	OrderStatusDraft         = "draft"
	OrderStatusPending       = "pending"
	OrderStatusPaid          = "paid"
	OrderStatusPaymentFailed = "payment_failed"
)

// Order is a CRM order row. The reconciler only flips payment-related status
// fields here; order creation and editing happen elsewhere in the CRM.
type Order struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;index;index:ux_orders_tenant_number,unique,priority:1" json:"tenant_id"`
	OrderNumber string    `gorm:"type:varchar(64);not null;index:ux_orders_tenant_number,unique,priority:2" json:"order_number"`
	CustomerID  *uint     `gorm:"index;default:null" json:"customer_id,omitempty"`
	Total       float64   `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	Status      string    `gorm:"type:varchar(32);not null;default:'draft';index" json:"status"`
	PaidAt      *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
