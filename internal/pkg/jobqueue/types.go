package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeReprocessEvent JobType = "reprocess_event"
	JobTypeDunningMail    JobType = "dunning_mail"
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

// MarkAsProcessing transitions the job into processing state
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkAsCompleted transitions the job into completed state
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkAsFailed records a failure on the job
func (j *Job) MarkAsFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMsg = errMsg
	j.RetryCount++
	j.UpdatedAt = time.Now()
}

// MarkAsRetrying flags the job for another attempt
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}

// IsRetryable reports whether the job has retry budget left
func (j *Job) IsRetryable() bool {
	return j.RetryCount <= j.MaxRetries
}

// ReprocessEventJobPayload contains the payload for ledger event reprocessing
type ReprocessEventJobPayload struct {
	EventID uint `json:"event_id"`
}

// ToMap converts the payload to a map for storage
func (p ReprocessEventJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_id": p.EventID,
	}
}

// ReprocessEventJobPayloadFromMap creates a payload from a map
func ReprocessEventJobPayloadFromMap(data map[string]interface{}) (*ReprocessEventJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ReprocessEventJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// DunningMailJobPayload contains the payload for dunning notification mails
type DunningMailJobPayload struct {
	SubscriptionUUID string `json:"subscription_uuid"`
	Status           string `json:"status"`
}

// ToMap converts the payload to a map for storage
func (p DunningMailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"subscription_uuid": p.SubscriptionUUID,
		"status":            p.Status,
	}
}

// DunningMailJobPayloadFromMap creates a payload from a map
func DunningMailJobPayloadFromMap(data map[string]interface{}) (*DunningMailJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload DunningMailJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}
