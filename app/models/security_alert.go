package models

import "time"

// SecurityAlert is raised when an inbound email carries destructive
// instructions (delete/cancel an identified record). The pipeline never acts
// on such instructions; it records the alert and stops.
type SecurityAlert struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	TenantID       uint       `gorm:"not null;index" json:"tenant_id"`
	InboundEventID uint       `gorm:"not null;uniqueIndex:ux_security_alerts_event" json:"inbound_event_id"`
	FromAddress    string     `gorm:"type:varchar(200)" json:"from_address"`
	Subject        string     `gorm:"type:varchar(255)" json:"subject"`
	Detail         string     `gorm:"type:text" json:"detail"`
	AcknowledgedAt *time.Time `gorm:"type:timestamp;default:null" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
