package account

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), mock
}

func TestRepository_CreateNormalizesEmail(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("uid-1", "Ada", "S-1", "ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"force_logout", "created_at"}).AddRow(false, created))

	got, err := repo.Create(context.Background(), Account{ID: "uid-1", Name: "Ada", StudentID: "S-1", Email: " Ada@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.False(t, got.ForceLogout)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), Account{ID: "uid-1", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_Exists(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_MarkForceLogout(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE users SET force_logout = TRUE`).
		WithArgs("a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.MarkForceLogout(context.Background(), "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type stubGetter struct {
	account Account
	err     error
}

func (s stubGetter) Get(context.Context, string) (Account, error) {
	return s.account, s.err
}

func serveGetUser(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/user/{id}", h.GetUser)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_GetUser(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHandler(stubGetter{account: Account{
		ID: "uid-1", Name: "Ada", StudentID: "S-1", Email: "ada@example.com", CreatedAt: created,
	}})

	rec := serveGetUser(h, "/user/uid-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"id":"uid-1","name":"Ada","studentId":"S-1","email":"ada@example.com","forceLogout":false,"createdAt":"2026-03-01T12:00:00Z"}}`, rec.Body.String())
}

func TestHandler_GetUserNotFound(t *testing.T) {
	rec := serveGetUser(NewHandler(stubGetter{err: ErrNotFound}), "/user/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())
}

func TestHandler_GetUserStoreFailure(t *testing.T) {
	rec := serveGetUser(NewHandler(stubGetter{err: errors.New("timeout")}), "/user/uid-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"failed to fetch user"}`, rec.Body.String())
}
