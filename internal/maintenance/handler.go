package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"contract-secretary/internal/auth"
)

// CleanupHandler purges expired/revoked refresh tokens and stale
// authorization codes. The online auth path only flags rows; this endpoint,
// driven by an external cron with a shared secret, is what deletes them.
type CleanupHandler struct {
	repo             *auth.Repository
	logger           *zap.Logger
	cronSecret       string
	refreshRetention time.Duration
	codeRetention    time.Duration
	batchSize        int
}

func NewCleanupHandler(
	repo *auth.Repository,
	logger *zap.Logger,
	cronSecret string,
	refreshRetention time.Duration,
	codeRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		repo:             repo,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		refreshRetention: refreshRetention,
		codeRetention:    codeRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.repo.CleanupStaleAuthData(r.Context(), h.refreshRetention, h.codeRetention, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed",
		zap.Int64("deleted_refresh_tokens", result.DeletedRefreshTokens),
		zap.Int64("deleted_authorization_codes", result.DeletedAuthorizationCodes),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
