package postgres

import (
	"context"
	"time"

	"github.com/jts-services/portal/internal/repository"
)

// InvoiceRepository is the Postgres implementation of repository.InvoiceRepository.
type InvoiceRepository struct {
	db *DB
}

func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// ApplyPayment invokes apply_invoice_payment, which is idempotent per
// (provider, reference).
func (r *InvoiceRepository) ApplyPayment(ctx context.Context, p *repository.Payment) (repository.PaymentResult, error) {
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	var (
		status  string
		applied bool
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT invoice_status, applied
		 FROM apply_invoice_payment($1, $2::uuid, $3, $4, $5, $6)`,
		p.OwnerID, p.InvoiceID, p.Amount, p.Reference, p.Provider, paidAt,
	).Scan(&status, &applied)
	if err != nil {
		return repository.PaymentResult{}, mapError("ApplyPayment", err)
	}
	return repository.PaymentResult{Status: repository.InvoiceStatus(status), Applied: applied}, nil
}

var _ repository.InvoiceRepository = (*InvoiceRepository)(nil)
