package transaction

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/radityprtama/stock-app/internal/platform/httpx"
	"github.com/radityprtama/stock-app/internal/shared"
)

// Handler serves the transaction endpoints of all five kinds.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs transaction handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers one route group per transaction kind.
func (h *Handler) MountRoutes(r chi.Router) {
	mounts := []struct {
		slug    string
		kind    Kind
		actions []Action
	}{
		{"/barang-masuk", KindGoodsReceipt, []Action{ActionPost, ActionCancel}},
		{"/surat-jalan", KindDeliveryNote, []Action{ActionPost, ActionDeliver, ActionCancel}},
		{"/delivery-order", KindTransfer, []Action{ActionPost, ActionDeliver, ActionCancel}},
		{"/retur-beli", KindPurchaseReturn, []Action{ActionApprove, ActionComplete, ActionCancel}},
		{"/retur-jual", KindSalesReturn, []Action{ActionApprove, ActionComplete, ActionCancel}},
	}
	for _, m := range mounts {
		kind, actions := m.kind, m.actions
		r.Route(m.slug, func(r chi.Router) {
			r.Get("/", h.handleList(kind))
			r.Post("/", h.handleCreate(kind))
			r.Get("/{id}", h.handleGet(kind))
			r.Put("/{id}", h.handleUpdate(kind))
			r.Delete("/{id}", h.handleDelete(kind))
			for _, action := range actions {
				// deliver is an idempotent status flip, the rest submit work
				if action == ActionDeliver {
					r.Put("/{id}/"+string(action), h.handleAction(kind, action))
					continue
				}
				r.Post("/{id}/"+string(action), h.handleAction(kind, action))
			}
			if kind == KindDeliveryNote {
				r.Post("/{id}/check-stock", h.handleCheckStock)
				r.Post("/{id}/fulfill", h.handleAction(kind, ActionFulfill))
				r.Patch("/{id}/dropship/{lineID}", h.handleDropship)
			}
		})
	}
}

func (h *Handler) handleList(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Kind:   kind,
			Status: Status(q.Get("status")),
			Search: q.Get("q"),
		}
		if s := q.Get("startDate"); s != "" {
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				httpx.Fail(w, http.StatusBadRequest, "validation_error", "startDate tidak valid")
				return
			}
			filter.DateFrom = t
		}
		if s := q.Get("endDate"); s != "" {
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				httpx.Fail(w, http.StatusBadRequest, "validation_error", "endDate tidak valid")
				return
			}
			filter.DateTo = t.Add(24*time.Hour - time.Nanosecond)
		}
		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.PerPage, _ = strconv.Atoi(q.Get("limit"))
		if filter.Page < 1 {
			filter.Page = 1
		}
		if filter.PerPage < 1 || filter.PerPage > 100 {
			filter.PerPage = 20
		}

		items, total, err := h.service.List(r.Context(), filter)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.OK(w, http.StatusOK, ListResponse{
			Transactions: items,
			Total:        total,
			Page:         filter.Page,
			PerPage:      filter.PerPage,
		})
	}
}

func (h *Handler) handleCreate(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "payload tidak valid")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "data tidak lengkap", validationDetails(err)...)
			return
		}
		trx, err := h.service.CreateDraft(r.Context(), kind, req, actorID(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.OKMessage(w, http.StatusCreated, trx, "transaksi berhasil dibuat")
	}
}

func (h *Handler) handleGet(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		trx, err := h.service.Get(r.Context(), kind, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.OK(w, http.StatusOK, trx)
	}
}

func (h *Handler) handleUpdate(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req UpdateRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "payload tidak valid")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "data tidak lengkap", validationDetails(err)...)
			return
		}
		trx, err := h.service.UpdateDraft(r.Context(), kind, id, req)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.OKMessage(w, http.StatusOK, trx, "transaksi berhasil diubah")
	}
}

func (h *Handler) handleDelete(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := h.service.DeleteDraft(r.Context(), kind, id); err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.OKMessage(w, http.StatusOK, nil, "transaksi berhasil dihapus")
	}
}

func (h *Handler) handleAction(kind Kind, action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		result, err := h.service.Post(r.Context(), kind, id, action, actorID(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.OKMessage(w, http.StatusOK, result, actionMessage(action))
	}
}

func (h *Handler) handleCheckStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	report, err := h.service.CheckStock(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, report)
}

func (h *Handler) handleDropship(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req DropshipAdvanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "payload tidak valid")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "status dropship tidak valid", validationDetails(err)...)
		return
	}
	trx, err := h.service.AdvanceDropship(r.Context(), id, lineID, req.Status, actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OKMessage(w, http.StatusOK, trx, "status dropship berhasil diubah")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, "not_found", "transaksi tidak ditemukan")
	default:
		var kinded httpx.Kinder
		if !errors.As(err, &kinded) {
			h.logger.Error("transaction request failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
		}
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", name+" tidak valid")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	if v := r.Header.Get("X-User-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return shared.SystemActorID
}

func actionMessage(action Action) string {
	switch action {
	case ActionPost:
		return "transaksi berhasil diposting"
	case ActionDeliver:
		return "transaksi ditandai terkirim"
	case ActionApprove:
		return "transaksi berhasil disetujui"
	case ActionComplete:
		return "transaksi berhasil diselesaikan"
	case ActionCancel:
		return "transaksi berhasil dibatalkan"
	case ActionFulfill:
		return "baris dropship berhasil dikirim"
	default:
		return "aksi berhasil dijalankan"
	}
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fe.Field()+": "+fe.Tag())
	}
	return details
}
