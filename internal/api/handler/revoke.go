package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/xela07ax/authgate/internal/infra/auth"
	"go.uber.org/zap"
)

type Revoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	Restore(ctx context.Context, jti string) error
}

type RevokeRequest struct {
	JTI       string     `json:"jti"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type RevocationHandler struct {
	revoker Revoker
	maxTTL  time.Duration // срок хранения, если клиент не знает exp токена
	logger  *zap.Logger
}

func NewRevocationHandler(r Revoker, maxTTL time.Duration, logger *zap.Logger) *RevocationHandler {
	return &RevocationHandler{revoker: r, maxTTL: maxTTL, logger: logger.Named("revocation-api")}
}

// Revoke POST /v1/admin/tokens/revoke
func (h *RevocationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	expiresAt := time.Now().Add(h.maxTTL)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}
	// Истёкший токен и так не пройдёт проверку, хранить его отзыв незачем
	if !expiresAt.After(time.Now()) {
		http.Error(w, "expires_at is in the past", http.StatusBadRequest)
		return
	}

	if err := h.revoker.Revoke(r.Context(), req.JTI, expiresAt); err != nil {
		h.logger.Error("revoke failed", zap.String("jti", req.JTI), zap.Error(err))
		http.Error(w, "failed to revoke token", http.StatusInternalServerError)
		return
	}

	h.audit(r, "token revoked", req.JTI)
	w.WriteHeader(http.StatusNoContent)
}

// Restore POST /v1/admin/tokens/restore
func (h *RevocationHandler) Restore(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.revoker.Restore(r.Context(), req.JTI); err != nil {
		h.logger.Error("restore failed", zap.String("jti", req.JTI), zap.Error(err))
		http.Error(w, "failed to restore token", http.StatusInternalServerError)
		return
	}

	h.audit(r, "token restored", req.JTI)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RevocationHandler) decode(w http.ResponseWriter, r *http.Request) (RevokeRequest, bool) {
	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return req, false
	}
	if req.JTI == "" {
		http.Error(w, "jti is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *RevocationHandler) audit(r *http.Request, msg, jti string) {
	operator := "unknown"
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		operator = p.Username
	}
	h.logger.Info(msg, zap.String("jti", jti), zap.String("operator", operator))
}
