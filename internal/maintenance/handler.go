package maintenance

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"ledger-serverless/internal/httpx"
	"ledger-serverless/internal/lockout"
	"ledger-serverless/internal/observability"
)

// CleanupHandler is hit by a scheduler to drop stale lockout entries from
// stores without their own eviction. It is disabled without a cron secret.
type CleanupHandler struct {
	sweeper    lockout.Sweeper
	logger     *observability.Logger
	cronSecret string
	now        func() time.Time
}

func NewCleanupHandler(sweeper lockout.Sweeper, logger *observability.Logger, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		sweeper:    sweeper,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		httpx.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	if !h.authorized(r) {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var deleted int64
	if h.sweeper != nil {
		n, err := h.sweeper.Sweep(r.Context(), h.now())
		if err != nil {
			h.logger.Error("lockout_cleanup_failed", map[string]any{"error": err.Error()})
			httpx.WriteError(w, http.StatusInternalServerError, "cleanup failed")
			return
		}
		deleted = n
	}

	h.logger.Info("lockout_cleanup_completed", map[string]any{"deleted_lockouts": deleted})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": map[string]int64{"deleted_lockouts": deleted},
	})
}

func (h *CleanupHandler) authorized(r *http.Request) bool {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	token = strings.TrimSpace(token)
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}
