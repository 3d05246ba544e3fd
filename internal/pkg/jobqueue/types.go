package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeRedrive JobType = "redrive"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ShouldRetry reports whether a failed job still has retry budget.
func (j *Job) ShouldRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// RedriveJobPayload identifies the inbound event a redrive job replays.
type RedriveJobPayload struct {
	EventUUID string `json:"event_uuid"`
}

// ToMap converts the payload to a map for storage
func (p RedriveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_uuid": p.EventUUID,
	}
}

// RedriveJobPayloadFromMap creates a payload from a map
func RedriveJobPayloadFromMap(data map[string]interface{}) (*RedriveJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload RedriveJobPayload
	if err := json.Unmarshal(jsonData, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
