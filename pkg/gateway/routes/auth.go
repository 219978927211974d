package routes

import (
	"encoding/json"
	"net/http"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/common/models"
	gatewayauth "github.com/carelink/platform/pkg/gateway/auth"
	"github.com/carelink/platform/pkg/gateway/middleware"
	"github.com/carelink/platform/pkg/identity"
	"github.com/gorilla/mux"
)

type AuthHandler struct {
	service   *identity.Service
	tokens    *gatewayauth.TokenManager
	blacklist gatewayauth.Blacklist
}

func NewAuthHandler(service *identity.Service, tokens *gatewayauth.TokenManager, blacklist gatewayauth.Blacklist) *AuthHandler {
	return &AuthHandler{service: service, tokens: tokens, blacklist: blacklist}
}

func (h *AuthHandler) Register(r *mux.Router) {
	r.HandleFunc("/auth/register", h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.handleRefresh).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(h.tokens))
	protected.HandleFunc("/auth/logout", h.handleLogout).Methods(http.MethodPost)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.Log.WithError(err).Warn("authentication failed")
		writeError(w, err)
		return
	}

	pair, err := h.tokens.IssuePair(user)
	if err != nil {
		logger.Log.WithError(err).Error("failed issuing token pair")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Refresh == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"refresh": "refresh token is required"})
		return
	}

	claims, err := h.tokens.ParseRefresh(req.Refresh)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid or expired refresh token"})
		return
	}

	revoked, err := h.blacklist.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		logger.Log.WithError(err).Error("blacklist lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if revoked {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid or expired refresh token"})
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid or expired refresh token"})
		return
	}

	access, err := h.tokens.IssueAccess(user)
	if err != nil {
		logger.Log.WithError(err).Error("failed issuing access token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, models.AccessResponse{Access: access})
}

// handleLogout blacklists the supplied refresh token. 205 on success, 400 on
// a missing, malformed, or already-revoked token.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Refresh == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"refresh": "refresh token is required"})
		return
	}

	claims, err := h.tokens.ParseRefresh(req.Refresh)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid or expired refresh token"})
		return
	}

	revoked, err := h.blacklist.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		logger.Log.WithError(err).Error("blacklist lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if revoked {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid or expired refresh token"})
		return
	}

	if err := h.blacklist.Revoke(r.Context(), claims.ID, h.tokens.RemainingLifetime(claims)); err != nil {
		logger.Log.WithError(err).Error("failed to blacklist refresh token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusResetContent)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error("request failed")
		http.Error(w, "internal error", status)
		return
	}
	respondJSON(w, status, map[string]string{"detail": err.Error()})
}
