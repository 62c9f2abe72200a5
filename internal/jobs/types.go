package jobs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeApplyPayment books a provider payment against an invoice.
	JobTypeApplyPayment JobType = "apply_payment"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// PaymentJob carries a payment notification received from a provider webhook.
type PaymentJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// OwnerID is the tenant the invoice belongs to.
	OwnerID string `json:"owner_id"`

	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`

	// Reference is the provider's transaction reference. Together with
	// Provider it makes replays of the same payment idempotent.
	Reference string    `json:"reference"`
	Provider  string    `json:"provider"`
	PaidAt    time.Time `json:"paid_at"`

	// InvoiceStatus is the invoice status after the payment was applied.
	InvoiceStatus string `json:"invoice_status,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *PaymentJob) GetID() string {
	return j.JobID
}

func (j *PaymentJob) GetType() JobType {
	return JobTypeApplyPayment
}

func (j *PaymentJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishPayment enqueues a payment job.
	PublishPayment(ctx context.Context, job *PaymentJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
// Errors wrapping ErrPermanent are not retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *PaymentJob) error

	// GetJob retrieves a job by ID. Missing jobs return ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*PaymentJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*PaymentJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// OwnerID restricts results to one tenant.
	OwnerID string

	// InvoiceID filters jobs by invoice.
	InvoiceID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
