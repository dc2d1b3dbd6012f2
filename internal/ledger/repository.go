package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"ledger-serverless/internal/dbx"
)

// ErrUnknownAccount is returned when a loan references an account that does
// not exist.
var ErrUnknownAccount = errors.New("unknown account")

const foreignKeyViolation = "23503"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AddLoan(ctx context.Context, userID, vendor string, amount Amount) (Amount, error) {
	return r.apply(ctx, userID, vendor, amount, TypeLoanAdd, `
		INSERT INTO loans (user_id, vendor, amount_cents, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, vendor) DO UPDATE
		SET amount_cents = loans.amount_cents + EXCLUDED.amount_cents,
			updated_at = EXCLUDED.updated_at
		RETURNING amount_cents
	`)
}

func (r *Repository) ClearLoan(ctx context.Context, userID, vendor string, amount Amount) (Amount, error) {
	return r.apply(ctx, userID, vendor, amount, TypeLoanClear, `
		INSERT INTO loans (user_id, vendor, amount_cents, updated_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (user_id, vendor) DO UPDATE
		SET amount_cents = GREATEST(loans.amount_cents - $3, 0),
			updated_at = EXCLUDED.updated_at
		RETURNING amount_cents
	`)
}

// apply updates the balance and appends the transaction in one database
// transaction. The balance update is a single upsert, so concurrent writers
// to the same (user, vendor) never lose an update.
func (r *Repository) apply(ctx context.Context, userID, vendor string, amount Amount, kind TransactionType, upsert string) (Amount, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return 0, fmt.Errorf("generate uuid v7: %w", err)
	}

	var balance Amount
	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, upsert, userID, vendor, int64(amount)).Scan(&balance); err != nil {
			if isForeignKeyViolation(err) {
				return ErrUnknownAccount
			}
			return fmt.Errorf("upsert loan balance: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, type, vendor, amount_cents, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
		`, id.String(), userID, string(kind), vendor, int64(amount)); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return 0, err
		}
		return 0, fmt.Errorf("%s: %w", kind, err)
	}

	return balance, nil
}

func (r *Repository) GetLoan(ctx context.Context, userID, vendor string) (Amount, error) {
	var balance Amount
	err := r.db.QueryRowContext(ctx, `
		SELECT amount_cents
		FROM loans
		WHERE user_id = $1 AND vendor = $2
	`, userID, vendor).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query loan balance: %w", err)
	}

	return balance, nil
}

func (r *Repository) RecentTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, vendor, amount_cents, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]Transaction, 0, limit)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.Vendor, &t.Amount, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return transactions, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
