package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/radityprtama/stock-app/internal/platform/httpx"
)

// Handler wires the kartu stok HTTP endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/kartu", h.handleStockCard)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		SourceKind: q.Get("transactionType"),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
	}

	itemID, err := strconv.ParseInt(q.Get("barangId"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "barangId wajib diisi")
		return
	}
	filter.ItemID = itemID

	if s := q.Get("gudangId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "gudangId tidak valid")
			return
		}
		filter.WarehouseID = id
	}
	if s := q.Get("startDate"); s != "" {
		from, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "startDate tidak valid")
			return
		}
		filter.From = from
	}
	if s := q.Get("endDate"); s != "" {
		to, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "endDate tidak valid")
			return
		}
		// end of day
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if s := q.Get("page"); s != "" {
		filter.Page, _ = strconv.Atoi(s)
	}
	if s := q.Get("limit"); s != "" {
		filter.PerPage, _ = strconv.Atoi(s)
	}

	card, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		h.logger.Error("get stock card", slog.Any("error", err),
			slog.Int64("item_id", filter.ItemID),
			slog.Int64("warehouse_id", filter.WarehouseID))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, card)
}
