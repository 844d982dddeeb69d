package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypePaymentReceipt        JobType = "payment_receipt"
	JobTypeSubscriptionCancelled JobType = "subscription_cancelled"
	JobTypeSubscriptionExpired   JobType = "subscription_expired"
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
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ErrorMsg    string          `json:"error_msg,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
}

// PaymentReceiptPayload asks for the receipt of a paid invoice.
type PaymentReceiptPayload struct {
	InvoiceID string `json:"invoice_id"`
}

// SubscriptionCancelledPayload announces a cancellation request.
type SubscriptionCancelledPayload struct {
	OrganizationID string `json:"organization_id"`
	Immediate      bool   `json:"immediate"`
}

// SubscriptionExpiredPayload announces a subscription changed by the expiry
// sweep. PastDue is false when the subscription was cancelled.
type SubscriptionExpiredPayload struct {
	OrganizationID string `json:"organization_id"`
	PastDue        bool   `json:"past_due"`
}

// DecodePayload unmarshals the job payload into dst.
func (j *Job) DecodePayload(dst interface{}) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
