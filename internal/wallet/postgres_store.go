package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vendora/paycore/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL. Balance columns are
// NUMERIC(20,2); CHECK constraints keep balance, pending_balance, and
// balance - pending_balance non-negative so overdrafts fail at the
// database even if a caller races past the service-level lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet tables with NUMERIC columns
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			account_id      VARCHAR(64) PRIMARY KEY,
			balance         NUMERIC(20,2) NOT NULL DEFAULT 0,
			pending_balance NUMERIC(20,2) NOT NULL DEFAULT 0,
			total_earned    NUMERIC(20,2) NOT NULL DEFAULT 0,
			total_paid_out  NUMERIC(20,2) NOT NULL DEFAULT 0,
			currency        VARCHAR(8) NOT NULL DEFAULT 'USD',
			is_active       BOOLEAN NOT NULL DEFAULT TRUE,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT chk_balance_nonneg   CHECK (balance >= 0),
			CONSTRAINT chk_pending_nonneg   CHECK (pending_balance >= 0),
			CONSTRAINT chk_available_nonneg CHECK (balance - pending_balance >= 0)
		);

		CREATE TABLE IF NOT EXISTS wallet_transactions (
			id             VARCHAR(36) PRIMARY KEY,
			account_id     VARCHAR(64) NOT NULL,
			type           VARCHAR(20) NOT NULL,
			status         VARCHAR(20) NOT NULL,
			amount         NUMERIC(20,2) NOT NULL,
			balance_before NUMERIC(20,2) NOT NULL,
			balance_after  NUMERIC(20,2) NOT NULL,
			order_id       VARCHAR(64),
			reference_id   VARCHAR(64),
			description    TEXT,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_wallet_txn_account ON wallet_transactions(account_id);
		CREATE INDEX IF NOT EXISTS idx_wallet_txn_created ON wallet_transactions(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_wallet_txn_type ON wallet_transactions(account_id, type);
	`)
	return err
}

func (p *PostgresStore) GetWallet(ctx context.Context, accountID string) (*Wallet, error) {
	w := &Wallet{AccountID: accountID}

	err := p.db.QueryRowContext(ctx, `
		SELECT balance, pending_balance, total_earned, total_paid_out,
		       currency, is_active, created_at, updated_at
		FROM wallets WHERE account_id = $1
	`, accountID).Scan(&w.Balance, &w.PendingBalance, &w.TotalEarned,
		&w.TotalPaidOut, &w.Currency, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (p *PostgresStore) CreateWallet(ctx context.Context, accountID, currency string) (*Wallet, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallets (account_id, currency, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return p.GetWallet(ctx, accountID)
}

func (p *PostgresStore) ApplyTransaction(ctx context.Context, txn *Transaction) (*Transaction, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock the wallet row for the read-modify-write.
	var balance, pending string
	err = tx.QueryRowContext(ctx, `
		SELECT balance, pending_balance FROM wallets
		WHERE account_id = $1 FOR UPDATE
	`, txn.AccountID).Scan(&balance, &pending)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}

	var result sql.Result
	if txn.Type.Debits() {
		// available >= amount is enforced here and by the CHECK constraint.
		result, err = tx.ExecContext(ctx, `
			UPDATE wallets SET
				balance        = balance - $2::NUMERIC(20,2),
				total_paid_out = total_paid_out + $2::NUMERIC(20,2),
				updated_at     = NOW()
			WHERE account_id = $1
			  AND balance - pending_balance >= $2::NUMERIC(20,2)
		`, txn.AccountID, txn.Amount)
	} else {
		earnedDelta := txn.Amount
		if txn.Type == TypeAdjustment {
			earnedDelta = "0"
		}
		result, err = tx.ExecContext(ctx, `
			UPDATE wallets SET
				balance      = balance + $2::NUMERIC(20,2),
				total_earned = total_earned + $3::NUMERIC(20,2),
				updated_at   = NOW()
			WHERE account_id = $1
		`, txn.AccountID, txn.Amount, earnedDelta)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrInsufficientFunds
	}

	completed := *txn
	completed.Status = StatusCompleted
	completed.BalanceBefore = balance
	if completed.ID == "" {
		completed.ID = idgen.WithPrefix("txn_")
	}

	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM wallets WHERE account_id = $1
	`, txn.AccountID).Scan(&completed.BalanceAfter)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions
			(id, account_id, type, status, amount, balance_before, balance_after,
			 order_id, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(20,2), $6::NUMERIC(20,2), $7::NUMERIC(20,2),
			NULLIF($8, ''), NULLIF($9, ''), $10, NOW())
	`, completed.ID, completed.AccountID, completed.Type, completed.Status,
		completed.Amount, completed.BalanceBefore, completed.BalanceAfter,
		completed.OrderID, completed.ReferenceID, completed.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	completed.CreatedAt = time.Now()
	return &completed, nil
}

func (p *PostgresStore) ListTransactions(ctx context.Context, accountID string, filter TransactionFilter) ([]*Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, type, status, amount, balance_before, balance_after,
		       COALESCE(order_id, ''), COALESCE(reference_id, ''), COALESCE(description, ''), created_at
		FROM wallet_transactions
		WHERE account_id = $1`
	args := []any{accountID}

	if filter.Type != "" {
		query += ` AND type = $2`
		args = append(args, string(filter.Type))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		t := &Transaction{}
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Status, &t.Amount,
			&t.BalanceBefore, &t.BalanceAfter, &t.OrderID, &t.ReferenceID,
			&t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Statistics(ctx context.Context, accountID string, since time.Time) (*Statistics, error) {
	stats := &Statistics{}

	err := p.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type IN ('debit', 'payout')), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'refund'), 0),
			COALESCE(SUM(amount) FILTER (WHERE type = 'adjustment'), 0),
			COUNT(*)
		FROM wallet_transactions
		WHERE account_id = $1 AND status = 'completed' AND created_at >= $2
	`, accountID, since).Scan(&stats.TotalEarned, &stats.TotalPaidOut,
		&stats.TotalRefunded, &stats.TotalAdjustments, &stats.TransactionCount)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *PostgresStore) AddHold(ctx context.Context, accountID, amount string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE wallets SET
			pending_balance = pending_balance + $2::NUMERIC(20,2),
			updated_at      = NOW()
		WHERE account_id = $1
		  AND balance - pending_balance >= $2::NUMERIC(20,2)
	`, accountID, amount)
	if err != nil {
		return fmt.Errorf("failed to add hold: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Either no wallet or not enough available balance.
		if _, err := p.GetWallet(ctx, accountID); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (p *PostgresStore) ReleaseHold(ctx context.Context, accountID, amount string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE wallets SET
			pending_balance = pending_balance - $2::NUMERIC(20,2),
			updated_at      = NOW()
		WHERE account_id = $1
		  AND pending_balance >= $2::NUMERIC(20,2)
	`, accountID, amount)
	if err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := p.GetWallet(ctx, accountID); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (p *PostgresStore) SettleHold(ctx context.Context, accountID, amount, reference string) (*Transaction, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var before string
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM wallets WHERE account_id = $1 FOR UPDATE
	`, accountID).Scan(&before)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance         = balance - $2::NUMERIC(20,2),
			pending_balance = pending_balance - $2::NUMERIC(20,2),
			total_paid_out  = total_paid_out + $2::NUMERIC(20,2),
			updated_at      = NOW()
		WHERE account_id = $1
		  AND pending_balance >= $2::NUMERIC(20,2)
		  AND balance >= $2::NUMERIC(20,2)
	`, accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to settle hold: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrInsufficientFunds
	}

	txn := &Transaction{
		ID:            idgen.WithPrefix("txn_"),
		AccountID:     accountID,
		Type:          TypePayout,
		Status:        StatusCompleted,
		BalanceBefore: before,
		ReferenceID:   reference,
		Description:   "withdrawal_settled",
	}

	err = tx.QueryRowContext(ctx, `
		SELECT balance, $2::NUMERIC(20,2)::TEXT FROM wallets WHERE account_id = $1
	`, accountID, amount).Scan(&txn.BalanceAfter, &txn.Amount)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions
			(id, account_id, type, status, amount, balance_before, balance_after,
			 reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(20,2), $6::NUMERIC(20,2), $7::NUMERIC(20,2), $8, $9, NOW())
	`, txn.ID, txn.AccountID, txn.Type, txn.Status, txn.Amount,
		txn.BalanceBefore, txn.BalanceAfter, txn.ReferenceID, txn.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to record payout transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	txn.CreatedAt = time.Now()
	return txn, nil
}
