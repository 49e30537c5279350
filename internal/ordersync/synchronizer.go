package ordersync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/httpx"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// OTP 上报类型。
const (
	OTPTypePickup  = "pickup"
	OTPTypeDropoff = "dropoff"
)

// Synchronizer 把本地状态变化回写到后端订单记录。
//
// 写失败只记日志、提示“进度可能未同步”，绝不回滚本地状态：
// 实时事件才是用户可见状态的事实来源，后端回写只是尽力而为的对账。
type Synchronizer struct {
	baseURL string
	token   string
	http    *http.Client
}

// New 创建同步器
func New(baseURL, token string, timeout time.Duration) *Synchronizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Synchronizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type statusPatch struct {
	Status order.Status `json:"status"`
}

// PushStatus PATCH /api/orders/{orderId}，把新状态写回订单记录。
func (s *Synchronizer) PushStatus(ctx context.Context, orderID string, st order.Status) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("order_id required")
	}
	u := fmt.Sprintf("%s/api/orders/%s", s.baseURL, url.PathEscape(orderID))
	if err := httpx.DoJSON(ctx, s.http, http.MethodPatch, u, s.token, statusPatch{Status: st}, nil); err != nil {
		return fmt.Errorf("push status %s for order %s: %w", st, orderID, err)
	}
	return nil
}

type otpBody struct {
	Type string `json:"type"`
	OTP  string `json:"otp"`
}

// PushOTP POST /api/orders/{orderId}/otp，把新生成的核验码写回订单记录。
func (s *Synchronizer) PushOTP(ctx context.Context, orderID, otpType, otp string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("order_id required")
	}
	if otpType != OTPTypePickup && otpType != OTPTypeDropoff {
		return fmt.Errorf("invalid otp type: %s", otpType)
	}
	if otp == "" {
		return fmt.Errorf("otp required")
	}
	u := fmt.Sprintf("%s/api/orders/%s/otp", s.baseURL, url.PathEscape(orderID))
	if err := httpx.DoJSON(ctx, s.http, http.MethodPost, u, s.token, otpBody{Type: otpType, OTP: otp}, nil); err != nil {
		return fmt.Errorf("push %s otp for order %s: %w", otpType, orderID, err)
	}
	return nil
}
