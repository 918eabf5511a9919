package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodtrace/internal/trace"
	dErrors "foodtrace/pkg/domain-errors"
)

// TraceHandler exposes the read-only aggregator plus the audit-note
// endpoint.
type TraceHandler struct {
	tracer *trace.Service
	logger *slog.Logger
}

func NewTraceHandler(tracer *trace.Service, logger *slog.Logger) *TraceHandler {
	return &TraceHandler{tracer: tracer, logger: logger}
}

func (h *TraceHandler) Register(r chi.Router) {
	r.Get("/trace/products/{id}/authenticity", h.handleAuthenticity)
	r.Get("/trace/products/{id}/supply-chain", h.handleSupplyChain)
	r.Get("/trace/products/{id}/report", h.handleReport)
	r.Get("/trace/products/{id}/report/full", h.handleFullReport)
	r.Post("/trace/products/{id}/audit", h.handleRecordAudit)
}

func (h *TraceHandler) handleAuthenticity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	result, err := h.tracer.VerifyAuthenticity(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *TraceHandler) handleSupplyChain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	result, err := h.tracer.VerifyCompleteSupplyChain(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *TraceHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	report, err := h.tracer.TraceabilityReport(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (h *TraceHandler) handleFullReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	report, err := h.tracer.FullTraceabilityReport(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

type auditNoteRequest struct {
	Note string `json:"note"`
}

func (h *TraceHandler) handleRecordAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req auditNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.tracer.RecordAudit(r.Context(), id, req.Note); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
