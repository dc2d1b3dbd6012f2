package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("account already exists")
)

const uniqueViolation = "23505"

// Account is the profile record created alongside an identity-provider
// account. ID is the provider's user id.
type Account struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StudentID   string    `json:"studentId"`
	Email       string    `json:"email"`
	ForceLogout bool      `json:"forceLogout"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, a Account) (Account, error) {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, student_id, email, force_logout, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING force_logout, created_at
	`, a.ID, a.Name, a.StudentID, a.Email).Scan(&a.ForceLogout, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, ErrDuplicate
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Account, error) {
	var a Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, student_id, email, force_logout, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.StudentID, &a.Email, &a.ForceLogout, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("query account: %w", err)
	}

	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return exists, nil
}

// MarkForceLogout flags every account registered under email. It returns the
// number of accounts updated, which is zero for an unknown email.
func (r *Repository) MarkForceLogout(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET force_logout = TRUE
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return 0, fmt.Errorf("mark force logout: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("force logout rows affected: %w", err)
	}
	return affected, nil
}
