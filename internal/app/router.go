package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"ledger-serverless/internal/account"
	"ledger-serverless/internal/auth"
	"ledger-serverless/internal/httpx"
	"ledger-serverless/internal/ledger"
	"ledger-serverless/internal/maintenance"
	"ledger-serverless/internal/observability"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterDeps struct {
	Logger   *observability.Logger
	Auth     *auth.Handler
	Accounts *account.Handler
	Ledger   *ledger.Handler
	Cleanup  *maintenance.CleanupHandler
	Health   Pinger

	LoginRateLimit  int
	LoginRateWindow time.Duration
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.SentryHub())
	r.Use(observability.RequestLogging(deps.Logger))
	r.Use(observability.Recover(deps.Logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", healthHandler(deps.Health))
	r.Get("/internal/maintenance/cleanup", deps.Cleanup.Handle)
	r.Post("/internal/maintenance/cleanup", deps.Cleanup.Handle)

	r.Post("/register", deps.Auth.Register)
	r.With(loginRateLimiter(deps.LoginRateLimit, deps.LoginRateWindow)).Post("/login", deps.Auth.Login)
	r.Post("/forgot-password", deps.Auth.ForgotPassword)
	r.Post("/verify-token", deps.Auth.VerifyToken)
	r.Post("/send-verification", deps.Auth.SendVerification)

	r.Get("/user/{id}", deps.Accounts.GetUser)
	r.Get("/transactions/recent/{id}", deps.Ledger.RecentTransactions)
	r.Post("/loans/add", deps.Ledger.AddLoan)
	r.Post("/loans/clear", deps.Ledger.ClearLoan)
	r.Get("/loans/get", deps.Ledger.GetLoan)

	return r
}

// loginRateLimiter caps login requests per client IP, in addition to the
// per-account lockout.
func loginRateLimiter(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		}),
	)
}

func healthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if pinger != nil {
			if err := pinger.PingContext(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}

		httpx.WriteJSON(w, status, body)
	}
}
