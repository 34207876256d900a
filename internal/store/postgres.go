package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/chipledger/internal/domain"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Accounts and balances live in the two tables created by the embedded
// migrations; the accounts row anchors existence and the balances row holds
// the value.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect parses the connection string, opens a pool and verifies the
// connection with a ping.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureAccount inserts the account and its starting balance in one
// transaction so a crash cannot leave an account without a balance row.
func (s *PostgresStore) EnsureAccount(ctx context.Context, userID string) (int64, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT DO NOTHING", userID)
	if err != nil {
		return 0, false, fmt.Errorf("account insert failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Already exists; report the current balance untouched.
		var balance int64
		err := tx.QueryRow(ctx,
			"SELECT balance FROM balances WHERE user_id = $1", userID).Scan(&balance)
		if err != nil {
			return 0, false, fmt.Errorf("balance lookup failed: %w", err)
		}
		return balance, false, nil
	}

	var balance int64
	err = tx.QueryRow(ctx,
		"INSERT INTO balances (user_id, balance) VALUES ($1, $2) RETURNING balance",
		userID, domain.StartingBalance).Scan(&balance)
	if err != nil {
		return 0, false, fmt.Errorf("balance insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("tx commit failed: %w", err)
	}
	return balance, true, nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		"SELECT balance FROM balances WHERE user_id = $1", userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance query failed: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, userID string, balance int64) (int64, error) {
	var newBalance int64
	err := s.pool.QueryRow(ctx,
		"UPDATE balances SET balance = $1 WHERE user_id = $2 RETURNING balance",
		balance, userID).Scan(&newBalance)
	if err == pgx.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance update failed: %w", err)
	}
	return newBalance, nil
}

// Transfer executes the read-validate-write sequence inside one transaction
// with row locks taken in canonical user id order, so two transfers touching
// the same accounts cannot deadlock or lose an update.
func (s *PostgresStore) Transfer(ctx context.Context, payerID, recipientID string, amount int64) (int64, int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return 0, 0, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	lock := func(userID string) (int64, bool, error) {
		var balance int64
		err := tx.QueryRow(ctx,
			"SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE", userID).Scan(&balance)
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("lock acquisition failed: %w", err)
		}
		return balance, true, nil
	}

	// Acquire locks in canonical order, then validate in command order.
	first, second := payerID, recipientID
	if first > second {
		first, second = second, first
	}

	firstBal, firstOK, err := lock(first)
	if err != nil {
		return 0, 0, err
	}
	secondBal, secondOK, err := lock(second)
	if err != nil {
		return 0, 0, err
	}

	payerBal, payerOK := firstBal, firstOK
	recipientBal, recipientOK := secondBal, secondOK
	if payerID != first {
		payerBal, payerOK = secondBal, secondOK
		recipientBal, recipientOK = firstBal, firstOK
	}

	switch {
	case !payerOK:
		return 0, 0, ErrPayerNotFound
	case payerBal < amount:
		return 0, 0, ErrInsufficientFunds
	case !recipientOK:
		return 0, 0, ErrRecipientNotFound
	}

	_, err = tx.Exec(ctx,
		"UPDATE balances SET balance = balance - $1 WHERE user_id = $2", amount, payerID)
	if err != nil {
		return 0, 0, fmt.Errorf("payer debit failed: %w", err)
	}
	_, err = tx.Exec(ctx,
		"UPDATE balances SET balance = balance + $1 WHERE user_id = $2", amount, recipientID)
	if err != nil {
		return 0, 0, fmt.Errorf("recipient credit failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("tx commit failed: %w", err)
	}
	return payerBal - amount, recipientBal + amount, nil
}

// ForEachAccount mutates each account in its own short transaction so a
// failure on one account leaves the rest of the pass intact.
func (s *PostgresStore) ForEachAccount(ctx context.Context, mutate func(int64) int64) ([]BulkResult, error) {
	rows, err := s.pool.Query(ctx, "SELECT user_id FROM balances ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("account enumeration failed: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("account scan failed: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account enumeration failed: %w", err)
	}

	results := make([]BulkResult, 0, len(userIDs))
	for _, id := range userIDs {
		balance, err := s.mutateAccount(ctx, id, mutate)
		results = append(results, BulkResult{UserID: id, Balance: balance, Err: err})
	}
	return results, nil
}

func (s *PostgresStore) mutateAccount(ctx context.Context, userID string, mutate func(int64) int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		"SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE", userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock acquisition failed: %w", err)
	}

	newBalance := mutate(balance)
	_, err = tx.Exec(ctx,
		"UPDATE balances SET balance = $1 WHERE user_id = $2", newBalance, userID)
	if err != nil {
		return 0, fmt.Errorf("balance update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("tx commit failed: %w", err)
	}
	return newBalance, nil
}

// ResetAll empties both tables. The schema itself is owned by the
// migrations, so truncation is the whole reset.
func (s *PostgresStore) ResetAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE accounts CASCADE"); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	return nil
}
