package withdrawal

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL. Status transitions
// are single conditional UPDATEs, so the database is the arbiter when
// two callers race on the same request.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed withdrawal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the withdrawal_requests table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS withdrawal_requests (
			id               VARCHAR(36) PRIMARY KEY,
			account_id       VARCHAR(64) NOT NULL,
			amount           NUMERIC(20,2) NOT NULL,
			currency         VARCHAR(8) NOT NULL,
			status           VARCHAR(20) NOT NULL,
			rejection_reason TEXT,
			transfer_id      VARCHAR(64),
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			processed_at     TIMESTAMPTZ,
			updated_at       TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_withdrawal_account ON withdrawal_requests(account_id);
		CREATE INDEX IF NOT EXISTS idx_withdrawal_status ON withdrawal_requests(status);
	`)
	return err
}

const requestColumns = `
	id, account_id, amount, currency, status,
	COALESCE(rejection_reason, ''), COALESCE(transfer_id, ''),
	created_at, processed_at`

func scanRequest(row *sql.Row) (*Request, error) {
	req := &Request{}
	err := row.Scan(&req.ID, &req.AccountID, &req.Amount, &req.Currency,
		&req.Status, &req.RejectionReason, &req.TransferID,
		&req.CreatedAt, &req.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (p *PostgresStore) Create(ctx context.Context, req *Request) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO withdrawal_requests
			(id, account_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3::NUMERIC(20,2), $4, $5, NOW())
	`, req.ID, req.AccountID, req.Amount, req.Currency, req.Status)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, accountID string, limit int) ([]*Request, error) {
	return p.list(ctx, `WHERE account_id = $1`, accountID, limit)
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error) {
	return p.list(ctx, `WHERE status = $1`, string(status), limit)
}

func (p *PostgresStore) list(ctx context.Context, where, arg string, limit int) ([]*Request, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM withdrawal_requests %s
		ORDER BY created_at DESC LIMIT %d
	`, requestColumns, where, limit), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Request
	for rows.Next() {
		req := &Request{}
		if err := rows.Scan(&req.ID, &req.AccountID, &req.Amount, &req.Currency,
			&req.Status, &req.RejectionReason, &req.TransferID,
			&req.CreatedAt, &req.ProcessedAt); err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// transition runs a conditional status UPDATE and distinguishes a
// missing row from a CAS loss.
func (p *PostgresStore) transition(ctx context.Context, id, set string, args ...any) (*Request, error) {
	query := fmt.Sprintf(`
		UPDATE withdrawal_requests SET status = $2, %s
		WHERE id = $1 AND status = $3
	`, set)

	all := append([]any{}, args...)
	result, err := p.db.ExecContext(ctx, query, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to update withdrawal status: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, getErr := p.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStateConflict
	}
	return p.Get(ctx, id)
}

func (p *PostgresStore) MarkProcessing(ctx context.Context, id string) (*Request, error) {
	return p.transition(ctx, id,
		`updated_at = NOW()`,
		id, StatusProcessing, StatusPending)
}

func (p *PostgresStore) MarkCompleted(ctx context.Context, id, transferID string) (*Request, error) {
	return p.transition(ctx, id,
		`transfer_id = $4, processed_at = NOW(), updated_at = NOW()`,
		id, StatusCompleted, StatusProcessing, transferID)
}

func (p *PostgresStore) MarkRejected(ctx context.Context, id, reason string) (*Request, error) {
	return p.transition(ctx, id,
		`rejection_reason = $4, processed_at = NOW(), updated_at = NOW()`,
		id, StatusRejected, StatusPending, reason)
}

func (p *PostgresStore) MarkPending(ctx context.Context, id string) (*Request, error) {
	return p.transition(ctx, id,
		`updated_at = NOW()`,
		id, StatusPending, StatusProcessing)
}

func (p *PostgresStore) ReopenForSettlement(ctx context.Context, id string) (*Request, error) {
	return p.transition(ctx, id,
		`updated_at = NOW()`,
		id, StatusProcessing, StatusCompleted)
}
