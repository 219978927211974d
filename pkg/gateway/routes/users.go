package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/common/models"
	gatewayauth "github.com/carelink/platform/pkg/gateway/auth"
	"github.com/carelink/platform/pkg/gateway/middleware"
	"github.com/carelink/platform/pkg/identity"
	"github.com/gorilla/mux"
)

type UserHandler struct {
	service   *identity.Service
	tokens    *gatewayauth.TokenManager
	blacklist gatewayauth.Blacklist
}

func NewUserHandler(service *identity.Service, tokens *gatewayauth.TokenManager, blacklist gatewayauth.Blacklist) *UserHandler {
	return &UserHandler{service: service, tokens: tokens, blacklist: blacklist}
}

// Register attaches the profile endpoints. The router must already carry the
// authentication and actor-resolution middleware.
func (h *UserHandler) Register(r *mux.Router) {
	r.HandleFunc("/users/me", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/users/me", h.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/users/me", h.handleDelete).Methods(http.MethodDelete)
}

type profileResponse struct {
	models.User
	PatientProfile *models.PatientProfile `json:"patient_profile,omitempty"`
	DoctorProfile  *models.DoctorProfile  `json:"doctor_profile,omitempty"`
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	respondJSON(w, http.StatusOK, profileResponse{
		User:           actor.User,
		PatientProfile: actor.Patient,
		DoctorProfile:  actor.Doctor,
	})
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), actor.User.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// handleDelete removes the account and everything it owns. A refresh token
// supplied with the request is blacklisted first; an invalid one aborts the
// deletion.
func (h *UserHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.DeleteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Refresh != "" {
		claims, err := h.tokens.ParseRefresh(req.Refresh)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid refresh token"})
			return
		}
		if err := h.blacklist.Revoke(r.Context(), claims.ID, h.tokens.RemainingLifetime(claims)); err != nil {
			logger.Log.WithError(err).Error("failed to blacklist refresh token")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	if err := h.service.DeleteUser(r.Context(), actor.User.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
