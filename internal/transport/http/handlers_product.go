package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"foodtrace/internal/product"
	dErrors "foodtrace/pkg/domain-errors"
	"foodtrace/pkg/requestcontext"
)

// ProductHandler exposes the product ledger.
type ProductHandler struct {
	products *product.Service
	logger   *slog.Logger
}

func NewProductHandler(products *product.Service, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

func (h *ProductHandler) Register(r chi.Router) {
	r.Post("/products", h.handleCreate)
	r.Post("/products/{id}/advance", h.handleAdvance)
	r.Post("/products/{id}/consume", h.handleConsume)
	r.Delete("/products/{id}", h.handleDeactivate)
	r.Get("/products/stats", h.handleStats)
	r.Get("/products/{id}", h.handleGet)
	r.Get("/products", h.handleQuery)
}

type createProductRequest struct {
	Name        string `json:"name"`
	BatchNumber string `json:"batchNumber"`
	Data        string `json:"data"`
	Location    string `json:"location"`
}

func (h *ProductHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	p, err := h.products.Create(ctx, product.CreateInput{
		Name:        req.Name,
		BatchNumber: req.BatchNumber,
		Data:        req.Data,
		Location:    req.Location,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "product creation rejected",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

type advanceRequest struct {
	TargetStage string `json:"targetStage"`
	Data        string `json:"data"`
}

func (h *ProductHandler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	target, err := product.ParseStage(req.TargetStage)
	if err != nil {
		WriteError(w, err)
		return
	}
	p, err := h.products.Advance(r.Context(), id, target, req.Data)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) handleConsume(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	p, err := h.products.MarkConsumed(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.products.Deactivate(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// handleQuery dispatches on the first query parameter present: batch, then
// stakeholder, then stage.
func (h *ProductHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	switch {
	case q.Get("batch") != "":
		p, err := h.products.ByBatch(ctx, q.Get("batch"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	case q.Get("stakeholder") != "":
		out, err := h.products.ByStakeholder(ctx, q.Get("stakeholder"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	case q.Get("stage") != "":
		stage, err := product.ParseStage(q.Get("stage"))
		if err != nil {
			WriteError(w, err)
			return
		}
		out, err := h.products.ByStage(ctx, stage)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	default:
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "one of batch, stakeholder, or stage is required"))
	}
}

func (h *ProductHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.products.StageCounts(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "id must be a positive integer")
	}
	return id, nil
}
