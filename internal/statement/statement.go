// Package statement derives running balances for a customer account.
//
// Two surfaces show balances and they do not agree on what a row's balance
// means:
//
//   - Live is the on-screen transaction table. Each row carries the balance
//     held before that row was applied, and the accumulator moves by
//     credit minus debit.
//   - Printable is the full statement. Rows are replayed from the implied
//     opening balance by debit minus credit, so each row carries the amount
//     owed after it, and the result is listed newest first.
//
// Both are kept as-is; callers pick the one that matches their surface.
package statement

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types as recorded by the point-of-sale and invoicing apps.
const (
	TypeSale    = "Vente"
	TypePayment = "Paiement"
)

// Transaction is one ledger movement. Debit raises what the customer owes,
// credit lowers it. A zero value stands in for an absent amount.
type Transaction struct {
	Date    time.Time       `json:"transaction_date"`
	Type    string          `json:"transaction_type"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Details string          `json:"details"`
}

// Net returns debit minus credit for the row.
func (t Transaction) Net() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// Line is a Transaction annotated with a running balance.
type Line struct {
	Transaction
	Balance decimal.Decimal `json:"balance"`
}

// Live labels each transaction, in the order given, with the balance that
// held before it, then advances the running balance by credit minus debit.
func Live(current decimal.Decimal, txs []Transaction) []Line {
	lines := make([]Line, 0, len(txs))
	balance := current
	for _, tx := range txs {
		lines = append(lines, Line{Transaction: tx, Balance: balance})
		balance = balance.Add(tx.Credit).Sub(tx.Debit)
	}
	return lines
}

// OpeningBalance is the balance implied before the first of txs, given the
// balance after the last of them.
func OpeningBalance(current decimal.Decimal, txs []Transaction) decimal.Decimal {
	opening := current
	for _, tx := range txs {
		opening = opening.Sub(tx.Net())
	}
	return opening
}

// Printable rebuilds the statement from the implied opening balance. txs are
// sorted oldest first (stable, so same-day rows keep their order), each line
// carries the balance after it, and the lines are returned newest first.
// The first returned line's balance always equals current.
func Printable(current decimal.Decimal, txs []Transaction) []Line {
	if len(txs) == 0 {
		return []Line{}
	}

	ordered := make([]Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	balance := OpeningBalance(current, ordered)
	lines := make([]Line, len(ordered))
	for i, tx := range ordered {
		balance = balance.Add(tx.Net())
		lines[len(ordered)-1-i] = Line{Transaction: tx, Balance: balance}
	}
	return lines
}

// Totals sums the debit and credit columns.
func Totals(txs []Transaction) (debit, credit decimal.Decimal) {
	for _, tx := range txs {
		debit = debit.Add(tx.Debit)
		credit = credit.Add(tx.Credit)
	}
	return debit, credit
}

// Statement is the printable statement with its summary figures.
type Statement struct {
	Opening     decimal.Decimal `json:"opening_balance"`
	Closing     decimal.Decimal `json:"closing_balance"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Lines       []Line          `json:"lines"`
}

// Build assembles a Statement from the current balance and the transactions
// that led to it.
func Build(current decimal.Decimal, txs []Transaction) Statement {
	debit, credit := Totals(txs)
	return Statement{
		Opening:     OpeningBalance(current, txs),
		Closing:     current,
		TotalDebit:  debit,
		TotalCredit: credit,
		Lines:       Printable(current, txs),
	}
}
