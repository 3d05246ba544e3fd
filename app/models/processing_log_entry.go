package models

import (
	"fmt"
	"time"
)

const (
	OutcomeSuccess              = "success"
	OutcomeFailedValidation     = "failed_validation"
	OutcomeFailedReconciliation = "failed_reconciliation"
	OutcomeExtractionIncomplete = "extraction_incomplete"
	OutcomeUnknownEvent         = "unknown_event"
	OutcomeDuplicateIgnored     = "duplicate_ignored"
	OutcomeDeadLettered         = "dead_lettered"
)

// ProcessingLogEntry records one processing attempt of an inbound event.
// The ledger is append-only and is the system of record for idempotency
// checks and operator audits. Entries are never updated or deleted.
type ProcessingLogEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	InboundEventID uint      `gorm:"not null;index" json:"inbound_event_id"`
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`
	ExternalRef    string    `gorm:"type:varchar(191);not null;index:idx_processing_log_ref_outcome,priority:1" json:"external_ref"`
	EventType      string    `gorm:"type:varchar(64);not null;index" json:"event_type"`
	Confidence     float64   `gorm:"type:decimal(4,3);default:0" json:"confidence"`
	ExtractionJSON string    `gorm:"type:longtext" json:"extraction_json"`
	Outcome        string    `gorm:"type:varchar(32);not null;index:idx_processing_log_ref_outcome,priority:2;index" json:"outcome"`
	ErrorDetail    string    `gorm:"type:text" json:"error_detail"`
	RecordTable    string    `gorm:"type:varchar(64)" json:"record_table"`
	RecordID       uint      `gorm:"default:0" json:"record_id"`
	Attempt        int       `gorm:"not null;default:1" json:"attempt"`
	ProcessedAt    time.Time `gorm:"type:timestamp;not null;index" json:"processed_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RecordRef renders the domain record reference as "table:id", or "" when the
// attempt produced no record.
func (e *ProcessingLogEntry) RecordRef() string {
	if e.RecordTable == "" || e.RecordID == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", e.RecordTable, e.RecordID)
}
