package models

import "time"

const (
	SourcePaymentProvider = "payment_provider"
	SourceEmailGateway    = "email_gateway"
)

// InboundEvent stores every received payload verbatim for audit and
// re-processing. Rows are append-only; the unique (source, external_ref)
// index is the idempotency gate for redelivered events.
type InboundEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`
	Source         string    `gorm:"type:varchar(32);not null;index:ux_inbound_events_source_ref,unique,priority:1" json:"source"`
	ExternalRef    string    `gorm:"type:varchar(191);not null;index:ux_inbound_events_source_ref,unique,priority:2" json:"external_ref"`
	RawPayload     string    `gorm:"type:longtext;not null" json:"raw_payload"`
	SignatureValid *bool     `gorm:"default:null" json:"signature_valid,omitempty"`
	ReceivedAt     time.Time `gorm:"type:timestamp;not null" json:"received_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
