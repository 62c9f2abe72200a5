// Package ledger serves customer balances for the point-of-sale and
// invoicing apps: the live transaction table and the printable statement.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jts-services/portal/internal/repository"
	"github.com/jts-services/portal/internal/statement"
	"github.com/rs/zerolog"
)

// Service reads ledger rows and runs them through the balance reconstructors.
type Service struct {
	customers repository.CustomerRepository
	log       zerolog.Logger
}

func NewService(customers repository.CustomerRepository, log zerolog.Logger) *Service {
	return &Service{customers: customers, log: log}
}

// LiveLedger is the on-screen transaction table for one customer.
type LiveLedger struct {
	Customer *repository.Customer `json:"customer"`
	Lines    []statement.Line     `json:"transactions"`
}

// Live returns every transaction of the customer, oldest first, labelled with
// the forward running balance.
func (s *Service) Live(ctx context.Context, ownerID, customerID string) (*LiveLedger, error) {
	customer, err := s.customers.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, fmt.Errorf("Live: %w", err)
	}
	txs, err := s.customers.ListTransactions(ctx, ownerID, customerID)
	if err != nil {
		return nil, fmt.Errorf("Live: %w", err)
	}
	return &LiveLedger{
		Customer: customer,
		Lines:    statement.Live(customer.CurrentBalance, txs),
	}, nil
}

// Period bounds a statement. Both ends are inclusive; a zero value leaves
// that end open.
type Period struct {
	From time.Time
	To   time.Time
}

// Validate rejects a period that ends before it starts.
func (p Period) Validate() error {
	if !p.From.IsZero() && !p.To.IsZero() && p.To.Before(p.From) {
		return fmt.Errorf("period ends before it starts: %w", repository.ErrInvalidInput)
	}
	return nil
}

// PrintableStatement is the reverse-mode statement for one customer.
type PrintableStatement struct {
	Customer *repository.Customer `json:"customer"`
	From     *time.Time           `json:"from,omitempty"`
	To       *time.Time           `json:"to,omitempty"`
	statement.Statement
}

// Statement builds the printable statement for a period. The customer's
// current balance is the balance after their latest transaction, so when the
// period closes before today the rows after it are backed out first to find
// the balance the period closed on.
func (s *Service) Statement(ctx context.Context, ownerID, customerID string, period Period) (*PrintableStatement, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("Statement: %w", err)
	}

	customer, err := s.customers.GetCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, fmt.Errorf("Statement: %w", err)
	}

	// Fetch from the start of the period with an open end so rows after the
	// period are available for backing out.
	txs, err := s.customers.StatementTransactions(ctx, ownerID, customerID, period.From, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("Statement: %w", err)
	}

	closing := customer.CurrentBalance
	inPeriod := txs
	if !period.To.IsZero() {
		inPeriod = make([]statement.Transaction, 0, len(txs))
		for _, tx := range txs {
			if tx.Date.After(period.To) {
				closing = closing.Sub(tx.Net())
				continue
			}
			inPeriod = append(inPeriod, tx)
		}
	}

	s.log.Debug().
		Str("customer_id", customerID).
		Int("rows", len(inPeriod)).
		Str("closing", closing.String()).
		Msg("Building statement")

	return &PrintableStatement{
		Customer:  customer,
		From:      timePtr(period.From),
		To:        timePtr(period.To),
		Statement: statement.Build(closing, inPeriod),
	}, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
