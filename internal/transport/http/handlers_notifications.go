package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "foodtrace/pkg/domain-errors"
	audit "foodtrace/pkg/platform/audit"
)

// NotificationHandler exposes the append-only notification log. This is the
// only mechanism for observers to learn of state changes without polling the
// ledgers.
type NotificationHandler struct {
	store  audit.Store
	logger *slog.Logger
}

func NewNotificationHandler(store audit.Store, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger}
}

func (h *NotificationHandler) Register(r chi.Router) {
	r.Get("/notifications", h.handleQuery)
}

func (h *NotificationHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	switch {
	case q.Get("entityKind") != "" && q.Get("entityId") != "":
		kind, err := audit.ParseEntityKind(q.Get("entityKind"))
		if err != nil {
			WriteError(w, err)
			return
		}
		events, err := h.store.ListByEntity(ctx, kind, q.Get("entityId"))
		if err != nil {
			WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "notification lookup failed"))
			return
		}
		WriteJSON(w, http.StatusOK, events)
	case q.Get("actor") != "":
		events, err := h.store.ListByActor(ctx, q.Get("actor"))
		if err != nil {
			WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "notification lookup failed"))
			return
		}
		WriteJSON(w, http.StatusOK, events)
	default:
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entityKind with entityId, or actor, is required"))
	}
}
