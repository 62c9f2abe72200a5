package payments

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jts-services/portal/internal/jobs"
	"github.com/jts-services/portal/internal/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// fakeInvoices books each (provider, reference) once, like apply_invoice_payment.
type fakeInvoices struct {
	status   repository.InvoiceStatus
	err      error
	payments []*repository.Payment
}

func (f *fakeInvoices) ApplyPayment(_ context.Context, p *repository.Payment) (repository.PaymentResult, error) {
	if f.err != nil {
		return repository.PaymentResult{}, f.err
	}
	for _, prev := range f.payments {
		if prev.Provider == p.Provider && prev.Reference == p.Reference {
			return repository.PaymentResult{Status: f.status}, nil
		}
	}
	f.payments = append(f.payments, p)
	return repository.PaymentResult{Status: f.status, Applied: true}, nil
}

// fakeNotifications enforces the per-owner dedup key like the unique index.
type fakeNotifications struct {
	inserted []*repository.Notification
	err      error
}

func (f *fakeNotifications) InsertNotification(_ context.Context, n *repository.Notification) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if n.DedupKey != "" {
		for _, prev := range f.inserted {
			if prev.OwnerID == n.OwnerID && prev.DedupKey == n.DedupKey {
				return false, nil
			}
		}
	}
	f.inserted = append(f.inserted, n)
	return true, nil
}

func (f *fakeNotifications) ListNotifications(context.Context, string, bool, int) ([]*repository.Notification, error) {
	return f.inserted, nil
}

func (f *fakeNotifications) MarkRead(context.Context, string, string) error { return nil }

func TestParseWebhook(t *testing.T) {
	job, err := ParseWebhook([]byte(`{"owner_id":"o1","invoice_id":"inv-1","amount":"2500.50","reference":"OM-77","provider":"orange-money","paid_at":"2024-03-05T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if !job.Amount.Equal(decimal.RequireFromString("2500.5")) || job.PaidAt.Day() != 5 || job.Provider != "orange-money" {
		t.Errorf("job = %+v", job)
	}

	noDate, err := ParseWebhook([]byte(`{"owner_id":"o1","invoice_id":"inv-1","amount":10,"reference":"r"}`))
	if err != nil || noDate.PaidAt.IsZero() {
		t.Errorf("missing paid_at should default to now: %+v, %v", noDate, err)
	}

	bad := map[string]string{
		"not json":        `{`,
		"missing invoice": `{"owner_id":"o1","amount":"1","reference":"r"}`,
		"zero amount":     `{"owner_id":"o1","invoice_id":"i","amount":"0","reference":"r"}`,
		"negative":        `{"owner_id":"o1","invoice_id":"i","amount":"-5","reference":"r"}`,
	}
	for name, body := range bad {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseWebhook([]byte(body)); !errors.Is(err, repository.ErrInvalidInput) {
				t.Errorf("ParseWebhook() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func newJob() *jobs.PaymentJob {
	return &jobs.PaymentJob{JobID: "j1", OwnerID: "o1", InvoiceID: "inv-1", Amount: decimal.NewFromInt(500), Reference: "OM-1"}
}

func TestHandle(t *testing.T) {
	inv := &fakeInvoices{status: repository.InvoiceStatusPaid}
	notes := &fakeNotifications{}
	p := NewProcessor(inv, notes, zerolog.Nop())

	job := newJob()
	if err := p.Handle(context.Background(), job); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(inv.payments) != 1 || inv.payments[0].Reference != "OM-1" {
		t.Errorf("payments = %+v", inv.payments)
	}
	if job.InvoiceStatus != "paid" {
		t.Errorf("InvoiceStatus = %q, want paid", job.InvoiceStatus)
	}
	if len(notes.inserted) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes.inserted))
	}
	n := notes.inserted[0]
	if n.OwnerID != "o1" || n.Kind != NotificationKind || n.Title != "Invoice paid" || !strings.Contains(n.Body, "500.00") {
		t.Errorf("notification = %+v", n)
	}
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name          string
		applyErr      error
		notifyErr     error
		wantPermanent bool
	}{
		{"unknown invoice", repository.ErrNotFound, nil, true},
		{"rejected amount", repository.ErrInvalidInput, nil, true},
		{"database down", errors.New("conn reset"), nil, false},
		{"notify fails", nil, errors.New("conn reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(
				&fakeInvoices{status: repository.InvoiceStatusPartial, err: tt.applyErr},
				&fakeNotifications{err: tt.notifyErr},
				zerolog.Nop(),
			)
			err := p.Handle(context.Background(), newJob())
			if err == nil {
				t.Fatal("Handle() expected error")
			}
			if got := errors.Is(err, jobs.ErrPermanent); got != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v (err = %v)", got, tt.wantPermanent, err)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	if title(repository.InvoiceStatusPartial) != "Partial payment received" || title("") != "Payment received" {
		t.Error("unexpected titles")
	}
}

func TestHandle_RedeliveredWebhookNotifiesOnce(t *testing.T) {
	inv := &fakeInvoices{status: repository.InvoiceStatusPaid}
	notes := &fakeNotifications{}
	p := NewProcessor(inv, notes, zerolog.Nop())

	body := []byte(`{"owner_id":"o1","invoice_id":"inv-1","amount":"500","reference":"OM-9","provider":"orange-money"}`)
	for i := 0; i < 3; i++ {
		job, err := ParseWebhook(body)
		if err != nil {
			t.Fatalf("ParseWebhook() error = %v", err)
		}
		if err := p.Handle(context.Background(), job); err != nil {
			t.Fatalf("delivery %d: Handle() error = %v", i+1, err)
		}
	}

	if len(inv.payments) != 1 {
		t.Errorf("payments booked = %d, want 1", len(inv.payments))
	}
	if len(notes.inserted) != 1 {
		t.Errorf("notifications = %d, want 1", len(notes.inserted))
	}
	if notes.inserted[0].DedupKey != DedupKey("orange-money", "OM-9") {
		t.Errorf("DedupKey = %q", notes.inserted[0].DedupKey)
	}
}

func TestHandle_RetryAfterNotifyFailureStillNotifies(t *testing.T) {
	inv := &fakeInvoices{status: repository.InvoiceStatusPartial}
	notes := &fakeNotifications{err: errors.New("conn reset")}
	p := NewProcessor(inv, notes, zerolog.Nop())

	if err := p.Handle(context.Background(), newJob()); err == nil {
		t.Fatal("first Handle() error = nil, want notify failure")
	}

	notes.err = nil
	if err := p.Handle(context.Background(), newJob()); err != nil {
		t.Fatalf("retry Handle() error = %v", err)
	}

	if len(inv.payments) != 1 {
		t.Errorf("payments booked = %d, want 1", len(inv.payments))
	}
	if len(notes.inserted) != 1 || notes.inserted[0].Title != "Partial payment received" {
		t.Errorf("notifications = %+v, want one partial-payment notice", notes.inserted)
	}
}
