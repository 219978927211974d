package annotations

import (
	"encoding/json"
	"net/http"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/logger"
	"github.com/carelink/platform/pkg/common/models"
	"github.com/carelink/platform/pkg/gateway/middleware"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/records/{record_id}/annotations", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/records/{record_id}/annotations", h.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/annotations", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/annotations", h.handleMissingID).Methods(http.MethodPut, http.MethodDelete)
	router.HandleFunc("/annotations/{id}", h.handleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/annotations/{id}", h.handleDelete).Methods(http.MethodDelete)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.CreateAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	annotation, err := h.service.Create(r.Context(), actor, mux.Vars(r)["record_id"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, annotation)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.service.List(r.Context(), actor, mux.Vars(r)["record_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.UpdateAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	annotation, err := h.service.Update(r.Context(), actor, mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotation)
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleMissingID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "annotation id parameter is missing"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error("annotations request failed")
		http.Error(w, "internal error", status)
		return
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}
