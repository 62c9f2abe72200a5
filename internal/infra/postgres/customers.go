package postgres

import (
	"context"
	"time"

	"github.com/jts-services/portal/internal/repository"
	"github.com/jts-services/portal/internal/statement"
)

// CustomerRepository is the Postgres implementation of repository.CustomerRepository.
type CustomerRepository struct {
	db *DB
}

func NewCustomerRepository(db *DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) GetCustomer(ctx context.Context, ownerID, customerID string) (*repository.Customer, error) {
	c := &repository.Customer{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id::text, owner_id, name, phone, current_balance
		 FROM customers WHERE id = $1 AND owner_id = $2`,
		customerID, ownerID,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone, &c.CurrentBalance)
	if err != nil {
		return nil, mapError("GetCustomer", err)
	}
	return c, nil
}

func (r *CustomerRepository) ListTransactions(ctx context.Context, ownerID, customerID string) ([]statement.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT transaction_date, transaction_type, debit, credit, details
		 FROM customer_transactions
		 WHERE owner_id = $1 AND customer_id = $2
		 ORDER BY transaction_date, id`,
		ownerID, customerID,
	)
	if err != nil {
		return nil, mapError("ListTransactions", err)
	}
	defer rows.Close()

	return scanTransactions("ListTransactions", rows)
}

func (r *CustomerRepository) StatementTransactions(ctx context.Context, ownerID, customerID string, from, to time.Time) ([]statement.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT transaction_date, transaction_type, debit, credit, details
		 FROM customer_statement($1, $2::uuid, $3, $4)`,
		ownerID, customerID, nullableTime(from), nullableTime(to),
	)
	if err != nil {
		return nil, mapError("StatementTransactions", err)
	}
	defer rows.Close()

	return scanTransactions("StatementTransactions", rows)
}

func scanTransactions(op string, rows rowScanner) ([]statement.Transaction, error) {
	txs := []statement.Transaction{}
	for rows.Next() {
		var tx statement.Transaction
		if err := rows.Scan(&tx.Date, &tx.Type, &tx.Debit, &tx.Credit, &tx.Details); err != nil {
			return nil, mapError(op+": scan", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op+": rows", err)
	}
	return txs, nil
}

var _ repository.CustomerRepository = (*CustomerRepository)(nil)
