package activeorder

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// Handler 活跃订单服务的 HTTP 接口，供追踪客户端作为持久化后端调用。
type Handler struct {
	svc *Service
	log logger.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(svc *Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Register 挂载路由。
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/active-orders/{userId}", h.get)
	r.Post("/api/active-orders/{userId}", h.put)
	r.Delete("/api/active-orders/{userId}", h.delete)
	r.Get("/api/order-history/{userId}", h.history)
}

type putRequest struct {
	Order      *order.Snapshot `json:"order"`
	TTLSeconds int             `json:"ttl_seconds"`
}

type orderResponse struct {
	Order *order.Snapshot `json:"order"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	snap, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "no active order")
			return
		}
		h.log.Errorf("get active order for user=%s failed: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: snap})
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))

	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Order == nil {
		writeError(w, http.StatusBadRequest, "order required")
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := h.svc.Put(r.Context(), userID, req.Order, ttl); err != nil {
		h.log.Errorf("put active order for user=%s failed: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: req.Order})
}

type historyResponse struct {
	Orders []ArchivedOrder `json:"orders"`
	Total  int64           `json:"total"`
}

// history 已完成订单的归档记录，供历史订单页分页拉取。
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, total, err := h.svc.History(r.Context(), userID, offset, limit)
	if err != nil {
		h.log.Errorf("list order history for user=%s failed: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if orders == nil {
		orders = []ArchivedOrder{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Orders: orders, Total: total})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if err := h.svc.Delete(r.Context(), userID); err != nil {
		h.log.Errorf("delete active order for user=%s failed: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
