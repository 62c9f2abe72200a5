package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jts-services/portal/internal/ledger"
	"github.com/jts-services/portal/internal/repository"
	"github.com/jts-services/portal/internal/statement"
)

func TestReadRecords(t *testing.T) {
	in := `[{"id":"1","name":"Root","parent_id":null},{"id":"2","name":"Docs","parent_id":"1"}]`

	records, err := readRecords(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].ParentID != nil {
		t.Errorf("Root parent = %v, want nil", *records[0].ParentID)
	}
	if records[1].ParentID == nil || *records[1].ParentID != "1" {
		t.Errorf("Docs parent = %v, want 1", records[1].ParentID)
	}

	if _, err := readRecords(strings.NewReader(`{"id":"1"}`)); err == nil {
		t.Error("readRecords(object) error = nil, want error")
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		wantFrom time.Time
		wantTo   time.Time
		wantErr  bool
	}{
		{name: "open"},
		{
			name:     "both bounds",
			from:     "2024-03-01",
			to:       "2024-03-31",
			wantFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 3, 31, 23, 59, 59, 999999000, time.UTC),
		},
		{name: "bad date", from: "01/03/2024", wantErr: true},
		{name: "reversed", from: "2024-03-31", to: "2024-03-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePeriod(tt.from, tt.to, time.UTC)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePeriod() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !p.From.Equal(tt.wantFrom) || !p.To.Equal(tt.wantTo) {
				t.Errorf("period = %v..%v, want %v..%v", p.From, p.To, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestPrintStatement(t *testing.T) {
	d := decimal.RequireFromString
	txs := []statement.Transaction{
		{Date: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Type: statement.TypeSale, Debit: d("2000"), Details: "Facture 001"},
		{Date: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), Type: statement.TypePayment, Credit: d("500"), Details: "Especes"},
	}
	st := &ledger.PrintableStatement{
		Customer:  &repository.Customer{Name: "Awa"},
		Statement: statement.Build(d("1500"), txs),
	}

	var buf bytes.Buffer
	if err := printStatement(&buf, st); err != nil {
		t.Fatalf("printStatement() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Statement for Awa",
		"Opening balance: 0.00",
		"Closing balance: 1500.00",
		"Total debit:     2000.00",
		"Total credit:    500.00",
		"Facture 001",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Especes") > strings.Index(out, "Facture 001") {
		t.Errorf("statement should list newest first:\n%s", out)
	}
	if strings.Contains(out, "Period:") {
		t.Errorf("open statement should not print a period:\n%s", out)
	}
}

func TestPrintLines_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printLines(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "(no transactions)\n" {
		t.Errorf("printLines(nil) = %q", buf.String())
	}
}
