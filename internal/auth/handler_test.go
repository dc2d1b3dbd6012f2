package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(t *testing.T) (http.Handler, fixture) {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.svc)

	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/verify-token", h.VerifyToken)
	r.Post("/send-verification", h.SendVerification)
	return r, f
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RegisterThenLockout(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := post(router, "/register", `{"name":"Ada","studentId":"S-1","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"User created successfully."}`, rec.Body.String())

	for i := 1; i <= 5; i++ {
		rec = post(router, "/login", `{"email":"a@x.com","password":"wrong"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code, "attempt %d", i)
		assert.JSONEq(t, `{"error":"INVALID_LOGIN_CREDENTIALS"}`, rec.Body.String())
	}

	rec = post(router, "/login", `{"email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Account locked due to multiple failed attempts. Please try again later."}`, rec.Body.String())

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 300)
}

func TestHandler_LoginSuccessBody(t *testing.T) {
	router, _ := newAuthRouter(t)
	post(router, "/register", `{"name":"Ada","studentId":"S-1","email":"a@x.com","password":"secret1"}`)

	rec := post(router, "/login", `{"email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Login successful","idToken":"id-a@x.com","refreshToken":"rt-a@x.com","userId":"uid-a@x.com"}`, rec.Body.String())
}

func TestHandler_RegisterMissingFields(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := post(router, "/register", `{"name":"Ada","email":"a@x.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing fields in request"}`, rec.Body.String())

	rec = post(router, "/register", ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ForgotPassword(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := post(router, "/forgot-password", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Password reset email sent successfully"}`, rec.Body.String())

	rec = post(router, "/forgot-password", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email is required"}`, rec.Body.String())
}

func TestHandler_VerifyToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	rec := post(router, "/verify-token", `{"idToken":"good-token"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Token is valid","userId":"uid-1"}`, rec.Body.String())

	rec = post(router, "/verify-token", `{"idToken":"forged"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Token invalid"}`, rec.Body.String())

	rec = post(router, "/verify-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"ID token is required"}`, rec.Body.String())
}

func TestHandler_SendVerification(t *testing.T) {
	router, f := newAuthRouter(t)

	rec := post(router, "/send-verification", `{"idToken":"id-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Verification email sent successfully"}`, rec.Body.String())

	f.provider.rejectNext = "INVALID_ID_TOKEN"
	rec = post(router, "/send-verification", `{"idToken":"id-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"INVALID_ID_TOKEN"}`, rec.Body.String())
}
