package creditterm

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL. The used-credit
// bound check rides in a conditional UPDATE, and a CHECK constraint
// (used_credit between 0 and credit_limit) backs it up.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed credit-terms store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the credit_terms and wholesale_orders tables
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credit_terms (
			id             VARCHAR(36) PRIMARY KEY,
			grantor_id     VARCHAR(64) NOT NULL,
			recipient_id   VARCHAR(64) NOT NULL,
			payment_method VARCHAR(20) NOT NULL,
			credit_days    INT NOT NULL DEFAULT 0,
			credit_limit   NUMERIC(20,2) NOT NULL DEFAULT 0,
			used_credit    NUMERIC(20,2) NOT NULL DEFAULT 0,
			is_active      BOOLEAN NOT NULL DEFAULT TRUE,
			created_at     TIMESTAMPTZ DEFAULT NOW(),
			updated_at     TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT uq_credit_terms_pair UNIQUE (grantor_id, recipient_id),
			CONSTRAINT chk_used_credit_nonneg CHECK (used_credit >= 0),
			CONSTRAINT chk_used_within_limit  CHECK (used_credit <= credit_limit)
		);

		CREATE TABLE IF NOT EXISTS wholesale_orders (
			id              VARCHAR(36) PRIMARY KEY,
			term_id         VARCHAR(36) NOT NULL,
			buyer_id        VARCHAR(64) NOT NULL,
			supplier_id     VARCHAR(64) NOT NULL,
			payment_method  VARCHAR(20) NOT NULL,
			credit_days     INT NOT NULL DEFAULT 0,
			due_date        TIMESTAMPTZ,
			total           NUMERIC(20,2) NOT NULL,
			paid_amount     NUMERIC(20,2) NOT NULL DEFAULT 0,
			payment_status  VARCHAR(20) NOT NULL,
			credit_released BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_wholesale_orders_term ON wholesale_orders(term_id);
		CREATE INDEX IF NOT EXISTS idx_wholesale_orders_buyer ON wholesale_orders(buyer_id);
	`)
	return err
}

const termColumns = `
	id, grantor_id, recipient_id, payment_method, credit_days,
	credit_limit, used_credit, is_active, created_at, updated_at`

func scanTerm(scan func(...any) error) (*Term, error) {
	term := &Term{}
	err := scan(&term.ID, &term.GrantorID, &term.RecipientID, &term.PaymentMethod,
		&term.CreditDays, &term.CreditLimit, &term.UsedCredit, &term.IsActive,
		&term.CreatedAt, &term.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTermNotFound
	}
	if err != nil {
		return nil, err
	}
	return term, nil
}

func (p *PostgresStore) GetTerm(ctx context.Context, id string) (*Term, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+termColumns+` FROM credit_terms WHERE id = $1
	`, id)
	return scanTerm(row.Scan)
}

func (p *PostgresStore) GetTermByPair(ctx context.Context, grantorID, recipientID string) (*Term, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+termColumns+` FROM credit_terms
		WHERE grantor_id = $1 AND recipient_id = $2
	`, grantorID, recipientID)
	return scanTerm(row.Scan)
}

func (p *PostgresStore) UpsertTerm(ctx context.Context, term *Term) (*Term, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO credit_terms
			(id, grantor_id, recipient_id, payment_method, credit_days,
			 credit_limit, used_credit, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC(20,2), $7::NUMERIC(20,2), $8, NOW(), NOW())
		ON CONFLICT (grantor_id, recipient_id) DO UPDATE SET
			payment_method = EXCLUDED.payment_method,
			credit_days    = EXCLUDED.credit_days,
			credit_limit   = EXCLUDED.credit_limit,
			is_active      = EXCLUDED.is_active,
			updated_at     = NOW()
		RETURNING `+termColumns,
		term.ID, term.GrantorID, term.RecipientID, term.PaymentMethod,
		term.CreditDays, term.CreditLimit, term.UsedCredit, term.IsActive)
	return scanTerm(row.Scan)
}

func (p *PostgresStore) ListByGrantor(ctx context.Context, grantorID string, limit int) ([]*Term, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM credit_terms
		WHERE grantor_id = $1 ORDER BY created_at DESC LIMIT %d
	`, termColumns, limit), grantorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Term
	for rows.Next() {
		term, err := scanTerm(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, term)
	}
	return result, rows.Err()
}

const orderColumns = `
	id, term_id, buyer_id, supplier_id, payment_method, credit_days,
	due_date, total, paid_amount, payment_status, credit_released, created_at`

func scanOrder(scan func(...any) error) (*Order, error) {
	order := &Order{}
	err := scan(&order.ID, &order.TermID, &order.BuyerID, &order.SupplierID,
		&order.PaymentMethod, &order.CreditDays, &order.DueDate, &order.Total,
		&order.PaidAmount, &order.PaymentStatus, &order.CreditReleased, &order.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM wholesale_orders WHERE id = $1
	`, id)
	return scanOrder(row.Scan)
}

func (p *PostgresStore) AuthorizeOrder(ctx context.Context, order *Order) (*Order, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if order.PaymentMethod == MethodCredit {
		result, err := tx.ExecContext(ctx, `
			UPDATE credit_terms SET
				used_credit = used_credit + $2::NUMERIC(20,2),
				updated_at  = NOW()
			WHERE id = $1 AND is_active
			  AND used_credit + $2::NUMERIC(20,2) <= credit_limit
		`, order.TermID, order.Total)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve credit: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			term, getErr := p.GetTerm(ctx, order.TermID)
			if getErr != nil {
				return nil, getErr
			}
			if !term.IsActive {
				return nil, ErrTermInactive
			}
			return nil, ErrCreditLimitExceeded
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wholesale_orders
			(id, term_id, buyer_id, supplier_id, payment_method, credit_days,
			 due_date, total, paid_amount, payment_status, credit_released, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC(20,2), $9::NUMERIC(20,2), $10, FALSE, NOW())
	`, order.ID, order.TermID, order.BuyerID, order.SupplierID,
		order.PaymentMethod, order.CreditDays, order.DueDate,
		order.Total, order.PaidAmount, order.PaymentStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p.GetOrder(ctx, order.ID)
}

func (p *PostgresStore) SettleOrder(ctx context.Context, orderID, paidAmount string) (*Order, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM wholesale_orders WHERE id = $1 FOR UPDATE
	`, orderID)
	order, err := scanOrder(row.Scan)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == PaymentPaid {
		return order, nil
	}

	var status PaymentStatus
	err = tx.QueryRowContext(ctx, `
		UPDATE wholesale_orders SET
			paid_amount    = paid_amount + $2::NUMERIC(20,2),
			payment_status = CASE
				WHEN paid_amount + $2::NUMERIC(20,2) >= total THEN 'paid'
				ELSE 'partial'
			END
		WHERE id = $1
		RETURNING payment_status
	`, orderID, paidAmount).Scan(&status)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	if status == PaymentPaid && order.PaymentMethod == MethodCredit && !order.CreditReleased {
		_, err = tx.ExecContext(ctx, `
			UPDATE credit_terms SET
				used_credit = GREATEST(used_credit - $2::NUMERIC(20,2), 0),
				updated_at  = NOW()
			WHERE id = $1
		`, order.TermID, order.Total)
		if err != nil {
			return nil, fmt.Errorf("failed to release credit: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE wholesale_orders SET credit_released = TRUE WHERE id = $1
		`, orderID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p.GetOrder(ctx, orderID)
}
