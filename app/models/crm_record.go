package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	CRMRecordKindQuotes  = "quotes"
	CRMRecordKindOrders  = "orders"
	CRMRecordKindRepairs = "repairs"
	CRMRecordKindTradeIn = "trade_in"
)

const (
	CRM_RECORD_STATUS_DRAFT  = "draft"
	CRM_RECORD_STATUS_TRIAGE = "triage"
)

// CRMRecord is a draft CRM record created from a classified inbound email
// (quote request, order inquiry, repair, trade-in). It links back to the
// inbound event for traceability and waits for a human to pick it up. The
// unique index on (inbound_event_id, kind) stops concurrent double-delivery
// from creating twin drafts.
type CRMRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`
	Kind           string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_crm_records_event_kind,priority:2" json:"kind" validate:"required,oneof=quotes orders repairs trade_in"`
	CustomerName   string    `gorm:"type:varchar(150)" json:"customer_name" validate:"max=150"`
	Email          string    `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email,max=200"`
	Phone          string    `gorm:"type:varchar(32)" json:"phone" validate:"max=32"`
	PhoneRaw       string    `gorm:"type:varchar(64)" json:"phone_raw" validate:"max=64"`
	Budget         *float64  `gorm:"type:decimal(12,2);default:null" json:"budget,omitempty"`
	Subject        string    `gorm:"type:varchar(255)" json:"subject" validate:"max=255"`
	Message        string    `gorm:"type:text" json:"message"`
	InboundEventID uint      `gorm:"not null;uniqueIndex:ux_crm_records_event_kind,priority:1" json:"inbound_event_id"`
	Status         string    `gorm:"type:varchar(32);not null;default:'draft';index" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *CRMRecord) Validate() error {
	v := validator.New()

	return v.Struct(r)
}
