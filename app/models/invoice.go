package models

import "time"

const (
	InvoiceStatusOpen    = "open"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusOverdue = "overdue"
)

// Invoice rows are keyed by (tenant, invoice number); provider invoice
// lifecycle events upsert against that key.
type Invoice struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	TenantID          uint       `gorm:"not null;index;index:ux_invoices_tenant_number,unique,priority:1" json:"tenant_id"`
	InvoiceNumber     string     `gorm:"type:varchar(64);not null;index:ux_invoices_tenant_number,unique,priority:2" json:"invoice_number"`
	ExternalInvoiceID string     `gorm:"type:varchar(191);index" json:"external_invoice_id"`
	Amount            float64    `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Currency          string     `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Status            string     `gorm:"type:varchar(32);not null;default:'open';index" json:"status"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
