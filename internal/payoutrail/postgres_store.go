package payoutrail

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDirectory implements Directory with PostgreSQL.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a new PostgreSQL-backed directory.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// Migrate creates the connect_accounts table
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS connect_accounts (
			account_id        VARCHAR(64) PRIMARY KEY,
			rail_account_id   VARCHAR(64) NOT NULL UNIQUE,
			status            VARCHAR(20) NOT NULL,
			charges_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
			payouts_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
			details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			updated_at        TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (d *PostgresDirectory) Get(ctx context.Context, accountID string) (*Account, error) {
	return d.scanOne(ctx, `WHERE account_id = $1`, accountID)
}

func (d *PostgresDirectory) GetByRailID(ctx context.Context, railAccountID string) (*Account, error) {
	return d.scanOne(ctx, `WHERE rail_account_id = $1`, railAccountID)
}

func (d *PostgresDirectory) scanOne(ctx context.Context, where, arg string) (*Account, error) {
	acct := &Account{}
	err := d.db.QueryRowContext(ctx, `
		SELECT account_id, rail_account_id, status, charges_enabled,
		       payouts_enabled, details_submitted, created_at, updated_at
		FROM connect_accounts `+where,
		arg).Scan(&acct.AccountID, &acct.RailAccountID, &acct.Status,
		&acct.ChargesEnabled, &acct.PayoutsEnabled, &acct.DetailsSubmitted,
		&acct.CreatedAt, &acct.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (d *PostgresDirectory) Create(ctx context.Context, acct *Account) error {
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO connect_accounts
			(account_id, rail_account_id, status, charges_enabled,
			 payouts_enabled, details_submitted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (account_id) DO NOTHING
	`, acct.AccountID, acct.RailAccountID, acct.Status,
		acct.ChargesEnabled, acct.PayoutsEnabled, acct.DetailsSubmitted)
	if err != nil {
		return fmt.Errorf("failed to create payout account: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAlreadyLinked
	}
	return nil
}

func (d *PostgresDirectory) UpdateState(ctx context.Context, railAccountID string, state *AccountState) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE connect_accounts SET
			charges_enabled   = $2,
			payouts_enabled   = $3,
			details_submitted = $4,
			status            = $5,
			updated_at        = NOW()
		WHERE rail_account_id = $1
	`, railAccountID, state.ChargesEnabled, state.PayoutsEnabled,
		state.DetailsSubmitted, statusFromState(state))
	if err != nil {
		return fmt.Errorf("failed to update payout account: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}
