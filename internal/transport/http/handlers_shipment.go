package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"foodtrace/internal/shipment"
	dErrors "foodtrace/pkg/domain-errors"
	"foodtrace/pkg/requestcontext"
)

// ShipmentHandler exposes the shipment ledger.
type ShipmentHandler struct {
	shipments *shipment.Service
	logger    *slog.Logger
}

func NewShipmentHandler(shipments *shipment.Service, logger *slog.Logger) *ShipmentHandler {
	return &ShipmentHandler{shipments: shipments, logger: logger}
}

func (h *ShipmentHandler) Register(r chi.Router) {
	r.Post("/shipments", h.handleCreate)
	r.Post("/shipments/{id}/status", h.handleUpdateStatus)
	r.Post("/shipments/{id}/cancel", h.handleCancel)
	r.Post("/shipments/{id}/verify", h.handleVerifyDelivery)
	r.Get("/shipments/stats", h.handleStats)
	r.Get("/shipments/{id}", h.handleGet)
	r.Get("/shipments", h.handleQuery)
}

type createShipmentRequest struct {
	ProductID      uint64 `json:"productId"`
	Receiver       string `json:"receiverIdentity"`
	TrackingNumber string `json:"trackingNumber"`
	TransportMode  string `json:"transportMode"`
}

func (h *ShipmentHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sh, err := h.shipments.Create(ctx, shipment.CreateInput{
		ProductID:      req.ProductID,
		Receiver:       req.Receiver,
		TrackingNumber: req.TrackingNumber,
		TransportMode:  req.TransportMode,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "shipment creation rejected",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sh)
}

type updateStatusRequest struct {
	Status       string `json:"status"`
	TrackingInfo string `json:"trackingInfo"`
	Location     string `json:"location"`
}

func (h *ShipmentHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	status, err := shipment.ParseStatus(req.Status)
	if err != nil {
		WriteError(w, err)
		return
	}
	sh, err := h.shipments.UpdateStatus(r.Context(), id, status, req.TrackingInfo, req.Location)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sh)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *ShipmentHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sh, err := h.shipments.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sh)
}

func (h *ShipmentHandler) handleVerifyDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	sh, err := h.shipments.VerifyDelivery(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sh)
}

func (h *ShipmentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	sh, err := h.shipments.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sh)
}

// handleQuery dispatches on the first query parameter present: tracking,
// then product (with active=true narrowing to the current shipment), then
// participant, then status.
func (h *ShipmentHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	switch {
	case q.Get("tracking") != "":
		sh, err := h.shipments.ByTracking(ctx, q.Get("tracking"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sh)
	case q.Get("product") != "":
		productID, err := strconv.ParseUint(q.Get("product"), 10, 64)
		if err != nil {
			WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "product must be a positive integer"))
			return
		}
		if q.Get("active") == "true" {
			id, err := h.shipments.ActiveByProduct(ctx, productID)
			if err != nil {
				WriteError(w, err)
				return
			}
			WriteJSON(w, http.StatusOK, map[string]uint64{"shipmentId": id})
			return
		}
		out, err := h.shipments.ByProduct(ctx, productID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	case q.Get("participant") != "":
		out, err := h.shipments.ByParticipant(ctx, q.Get("participant"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	case q.Get("status") != "":
		status, err := shipment.ParseStatus(q.Get("status"))
		if err != nil {
			WriteError(w, err)
			return
		}
		out, err := h.shipments.ByStatus(ctx, status)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	default:
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "one of tracking, product, participant, or status is required"))
	}
}

func (h *ShipmentHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.shipments.StatusCounts(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
