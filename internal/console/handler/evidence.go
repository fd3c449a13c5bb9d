package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/integrity-gate/internal/console/service"
	"github.com/xela07ax/integrity-gate/internal/domain"
)

type EvidenceHandler struct {
	service *service.EvidenceService
}

func NewEvidenceHandler(s *service.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: s}
}

// List возвращает последние evidence-записи
// GET /v1/evidence?limit=100
func (h *EvidenceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := h.service.FetchRecent(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to fetch evidence", http.StatusInternalServerError)
		return
	}

	writeJSON(w, rows)
}

// Get возвращает один бандл по evidence_id
// GET /v1/evidence/{id}
func (h *EvidenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	row, err := h.service.FetchByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Evidence not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch evidence", http.StatusInternalServerError)
		return
	}

	writeJSON(w, row)
}

// ByTrace возвращает цепочку решений одного запроса
// GET /v1/evidence/trace/{trace_id}
func (h *EvidenceHandler) ByTrace(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "trace_id")

	rows, err := h.service.FetchByTrace(r.Context(), traceID)
	if err != nil {
		http.Error(w, "Failed to fetch evidence", http.StatusInternalServerError)
		return
	}

	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
