package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment mirrors a provider payment intent. Amounts are stored in decimal
// major units; providers deliver minor units which the extractor converts.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	TenantID          uint      `gorm:"not null;index" json:"tenant_id"`
	Provider          string    `gorm:"type:varchar(32);not null;index:ux_payments_provider_ext,unique,priority:1" json:"provider"`
	ExternalPaymentID string    `gorm:"type:varchar(191);not null;index:ux_payments_provider_ext,unique,priority:2" json:"external_payment_id"`
	OrderID           *uint     `gorm:"index;default:null" json:"order_id,omitempty"`
	Amount            float64   `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Currency          string    `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Status            string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	FailureReason     string    `gorm:"type:text" json:"failure_reason"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
