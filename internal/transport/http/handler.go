package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"flashsale/internal/model"
	"flashsale/internal/repository"
	"flashsale/internal/service"
)

// Service is the part of the flash-sale service the HTTP layer consumes.
type Service interface {
	AttemptPurchase(ctx context.Context, buyerID, goodID int64) (model.PurchaseOutcome, error)
	QueryResult(ctx context.Context, buyerID, goodID int64) (model.PurchaseResult, error)
	CreateGood(ctx context.Context, g *model.Good) error
	UpdateGood(ctx context.Context, g *model.Good) error
	DeleteGood(ctx context.Context, goodID int64) error
	GetGood(ctx context.Context, goodID int64) (*model.Good, error)
	ListGoods(ctx context.Context) ([]model.Good, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	ResetGood(ctx context.Context, goodID int64, newStock int) error
	Stats() service.ProtectionStats
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /purchase", h.Purchase)
	mux.HandleFunc("GET /result", h.Result)
	mux.HandleFunc("GET /goods", h.ListGoods)
	mux.HandleFunc("POST /goods", h.CreateGood)
	mux.HandleFunc("PUT /goods", h.UpdateGood)
	mux.HandleFunc("DELETE /goods", h.DeleteGood)
	mux.HandleFunc("GET /good", h.GetGood)
	mux.HandleFunc("POST /goods/reset", h.ResetGood)
	mux.HandleFunc("GET /orders", h.ListOrders)
	mux.HandleFunc("GET /stats", h.Stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// outcomeStatus maps admission outcomes to HTTP codes. QUEUED is 202 because
// the purchase is not settled yet, only admitted.
func outcomeStatus(outcome model.PurchaseOutcome) int {
	switch outcome {
	case model.OutcomeQueued:
		return http.StatusAccepted
	case model.OutcomeThrottled:
		return http.StatusTooManyRequests
	case model.OutcomeSoldOut, model.OutcomeDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.BuyerID <= 0 || req.GoodID <= 0 {
		h.respondError(w, http.StatusBadRequest, "buyer_id and good_id are required")
		return
	}
	outcome, err := h.svc.AttemptPurchase(r.Context(), req.BuyerID, req.GoodID)
	if err != nil {
		slog.Error("purchase attempt failed", "buyer_id", req.BuyerID, "good_id", req.GoodID, "error", err)
	}
	h.respondJSON(w, outcomeStatus(outcome), map[string]model.PurchaseOutcome{"outcome": outcome})
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	buyerID, ok1 := queryInt64(r, "buyer_id")
	goodID, ok2 := queryInt64(r, "good_id")
	if !ok1 || !ok2 {
		h.respondError(w, http.StatusBadRequest, "missing_params")
		return
	}
	res, err := h.svc.QueryResult(r.Context(), buyerID, goodID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateGood(w http.ResponseWriter, r *http.Request) {
	var g model.Good
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.CreateGood(r.Context(), &g); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusCreated, g)
}

func (h *Handler) UpdateGood(w http.ResponseWriter, r *http.Request) {
	var g model.Good
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.UpdateGood(r.Context(), &g); err != nil {
		h.respondGoodError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, g)
}

func (h *Handler) DeleteGood(w http.ResponseWriter, r *http.Request) {
	goodID, ok := queryInt64(r, "good_id")
	if !ok {
		h.respondError(w, http.StatusBadRequest, "missing_params")
		return
	}
	if err := h.svc.DeleteGood(r.Context(), goodID); err != nil {
		h.respondGoodError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) GetGood(w http.ResponseWriter, r *http.Request) {
	goodID, ok := queryInt64(r, "good_id")
	if !ok {
		h.respondError(w, http.StatusBadRequest, "missing_params")
		return
	}
	good, err := h.svc.GetGood(r.Context(), goodID)
	if err != nil {
		h.respondGoodError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, good)
}

func (h *Handler) ListGoods(w http.ResponseWriter, r *http.Request) {
	goods, err := h.svc.ListGoods(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, goods)
}

func (h *Handler) ResetGood(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GoodID int64 `json:"good_id"`
		Stock  *int  `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.GoodID <= 0 {
		h.respondError(w, http.StatusBadRequest, "good_id is required")
		return
	}
	// Omitted stock means "reseed from the current durable count".
	newStock := -1
	if req.Stock != nil {
		newStock = *req.Stock
	}
	if err := h.svc.ResetGood(r.Context(), req.GoodID, newStock); err != nil {
		h.respondGoodError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *Handler) respondGoodError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrGoodNotFound) {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func queryInt64(r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
