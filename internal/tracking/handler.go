package tracking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/store"
)

// Handler 追踪服务的 HTTP 接口。
type Handler struct {
	manager *Manager
	log     logger.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(manager *Manager, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{manager: manager, log: log}
}

// Register 挂载路由。
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/tracking/{userId}", h.start)
	r.Get("/api/tracking/{userId}", h.state)
	r.Delete("/api/tracking/{userId}", h.stop)
}

// start 启动（或复用）用户的追踪会话，返回当前视图。
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}

	t, err := h.manager.StartTracking(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNoActiveOrder) {
			writeError(w, http.StatusNotFound, "no active order")
			return
		}
		h.log.Errorf("start tracking failed for user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to start tracking")
		return
	}
	writeJSON(w, http.StatusOK, t.State())
}

// state 返回追踪视图的当前状态。
func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	t := h.manager.Tracker(userID)
	if t == nil {
		writeError(w, http.StatusNotFound, "tracking not started")
		return
	}
	writeJSON(w, http.StatusOK, t.State())
}

// stop 销毁追踪会话（不清除活跃订单，重新 POST 可恢复）。
func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	h.manager.StopTracking(userID)
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
