// Package payments applies provider payment notifications to invoices and
// tells the invoice owner about them.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jts-services/portal/internal/jobs"
	"github.com/jts-services/portal/internal/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NotificationKind tags notifications created for payments.
const NotificationKind = "payment"

// Webhook is the body a payment provider posts.
type Webhook struct {
	OwnerID   string          `json:"owner_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Provider  string          `json:"provider"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

// ParseWebhook decodes and validates a webhook body into a job ready to publish.
func ParseWebhook(body []byte) (*jobs.PaymentJob, error) {
	var w Webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", repository.ErrInvalidInput)
	}

	var missing []string
	for field, v := range map[string]string{
		"owner_id":   w.OwnerID,
		"invoice_id": w.InvoiceID,
		"reference":  w.Reference,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("webhook missing %s: %w", strings.Join(missing, ", "), repository.ErrInvalidInput)
	}
	if !w.Amount.IsPositive() {
		return nil, fmt.Errorf("webhook amount must be positive: %w", repository.ErrInvalidInput)
	}

	paidAt := time.Now().UTC()
	if w.PaidAt != nil && !w.PaidAt.IsZero() {
		paidAt = *w.PaidAt
	}

	return &jobs.PaymentJob{
		OwnerID:   w.OwnerID,
		InvoiceID: w.InvoiceID,
		Amount:    w.Amount,
		Reference: w.Reference,
		Provider:  w.Provider,
		PaidAt:    paidAt,
	}, nil
}

// Processor is the job handler for payment jobs.
type Processor struct {
	invoices      repository.InvoiceRepository
	notifications repository.NotificationRepository
	log           zerolog.Logger
}

func NewProcessor(invoices repository.InvoiceRepository, notifications repository.NotificationRepository, log zerolog.Logger) *Processor {
	return &Processor{invoices: invoices, notifications: notifications, log: log}
}

// Handle implements jobs.JobHandler. Unknown invoices and rejected amounts
// fail permanently; anything else is retried. Applying the same payment twice
// is a no-op in the database, and the notification is keyed on the payment,
// so a redelivered webhook neither books nor notifies twice. A replay still
// notifies if the first delivery failed after booking but before notifying.
func (p *Processor) Handle(ctx context.Context, job jobs.Job) error {
	pj, ok := job.(*jobs.PaymentJob)
	if !ok {
		return fmt.Errorf("unexpected job type %T: %w", job, jobs.ErrPermanent)
	}

	log := p.log.With().
		Str("job_id", pj.JobID).
		Str("owner_id", pj.OwnerID).
		Str("invoice_id", pj.InvoiceID).
		Logger()

	result, err := p.invoices.ApplyPayment(ctx, &repository.Payment{
		OwnerID:   pj.OwnerID,
		InvoiceID: pj.InvoiceID,
		Amount:    pj.Amount,
		Reference: pj.Reference,
		Provider:  pj.Provider,
		PaidAt:    pj.PaidAt,
	})
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidInput) {
		return fmt.Errorf("apply payment: %w: %w", err, jobs.ErrPermanent)
	}
	if err != nil {
		return fmt.Errorf("apply payment: %w", err)
	}
	status := result.Status
	pj.InvoiceStatus = string(status)

	n := &repository.Notification{
		OwnerID:  pj.OwnerID,
		Kind:     NotificationKind,
		Title:    title(status),
		Body:     fmt.Sprintf("%s received for invoice %s (ref. %s)", pj.Amount.StringFixed(2), pj.InvoiceID, pj.Reference),
		DedupKey: DedupKey(pj.Provider, pj.Reference),
	}
	created, err := p.notifications.InsertNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	if !result.Applied {
		log.Info().
			Str("reference", pj.Reference).
			Bool("notified", created).
			Msg("Payment already recorded")
		return nil
	}

	log.Info().
		Str("amount", pj.Amount.String()).
		Str("invoice_status", string(status)).
		Msg("Payment applied")
	return nil
}

// DedupKey identifies the notification for one provider payment.
func DedupKey(provider, reference string) string {
	return "payment:" + provider + ":" + reference
}

func title(status repository.InvoiceStatus) string {
	switch status {
	case repository.InvoiceStatusPaid:
		return "Invoice paid"
	case repository.InvoiceStatusPartial:
		return "Partial payment received"
	default:
		return "Payment received"
	}
}
