package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodtrace/internal/identity"
	dErrors "foodtrace/pkg/domain-errors"
	"foodtrace/pkg/requestcontext"
)

// IdentityHandler exposes the identity registry. Administrative routes are
// mounted behind the admin token middleware by the router; the service
// re-checks the caller against the current admin on every call.
type IdentityHandler struct {
	identities *identity.Service
	logger     *slog.Logger
}

func NewIdentityHandler(identities *identity.Service, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{identities: identities, logger: logger}
}

// RegisterAdmin mounts the admin-gated registry routes.
func (h *IdentityHandler) RegisterAdmin(r chi.Router) {
	r.Post("/stakeholders", h.handleRegister)
	r.Delete("/stakeholders/{identity}", h.handleDeactivate)
	r.Post("/admin/transfer", h.handleTransferAdmin)
}

// Register mounts the open registry routes.
func (h *IdentityHandler) Register(r chi.Router) {
	r.Put("/stakeholders/{identity}", h.handleUpdateInfo)
	r.Get("/stakeholders/{identity}", h.handleGet)
	r.Get("/stakeholders", h.handleQuery)
}

type registerRequest struct {
	Identity        string   `json:"identity"`
	Role            string   `json:"role"`
	BusinessName    string   `json:"businessName"`
	BusinessLicense string   `json:"businessLicense"`
	Location        string   `json:"location"`
	Certifications  []string `json:"certifications"`
}

func (h *IdentityHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		WriteError(w, err)
		return
	}
	st, err := h.identities.Register(ctx, identity.RegisterInput{
		Identity:        req.Identity,
		Role:            role,
		BusinessName:    req.BusinessName,
		BusinessLicense: req.BusinessLicense,
		Location:        req.Location,
		Certifications:  req.Certifications,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "stakeholder registration rejected",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, st)
}

func (h *IdentityHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	st, err := h.identities.Deactivate(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

type updateRequest struct {
	BusinessName   string   `json:"businessName"`
	Location       string   `json:"location"`
	Certifications []string `json:"certifications"`
}

func (h *IdentityHandler) handleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	st, err := h.identities.UpdateInfo(r.Context(), chi.URLParam(r, "identity"), identity.UpdateInput{
		BusinessName:   req.BusinessName,
		Location:       req.Location,
		Certifications: req.Certifications,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

type transferAdminRequest struct {
	NewAdmin string `json:"newAdmin"`
}

func (h *IdentityHandler) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req transferAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.identities.TransferAdmin(ctx, req.NewAdmin); err != nil {
		WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "admin transferred",
		"new_admin", req.NewAdmin,
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *IdentityHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.identities.Get(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

// handleQuery dispatches on the first query parameter present: role, then
// license, then name substring.
func (h *IdentityHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	switch {
	case q.Get("role") != "":
		role, err := identity.ParseRole(q.Get("role"))
		if err != nil {
			WriteError(w, err)
			return
		}
		out, err := h.identities.ByRole(ctx, role)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	case q.Get("license") != "":
		st, err := h.identities.ByLicense(ctx, q.Get("license"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, st)
	case q.Get("name") != "":
		out, err := h.identities.SearchByName(ctx, q.Get("name"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	default:
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "one of role, license, or name is required"))
	}
}
