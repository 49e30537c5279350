package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/httpx"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// ErrNoActiveOrder 用户当前没有活跃订单。
var ErrNoActiveOrder = errors.New("active order not found")

// DurableStore 活跃订单的持久化侧存储。
type DurableStore interface {
	Load(ctx context.Context, userID string) (*order.Snapshot, error)
	Save(ctx context.Context, userID string, snap *order.Snapshot, ttl time.Duration) error
	Clear(ctx context.Context, userID string) error
}

// ActiveOrderClient 活跃订单存储服务的 REST 客户端：
//
//	GET    /api/active-orders/{userId}
//	POST   /api/active-orders/{userId}
//	DELETE /api/active-orders/{userId}
type ActiveOrderClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewActiveOrderClient 创建客户端
func NewActiveOrderClient(baseURL, token string, timeout time.Duration) *ActiveOrderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ActiveOrderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type activeOrderBody struct {
	Order      *order.Snapshot `json:"order"`
	TTLSeconds int             `json:"ttl_seconds,omitempty"`
}

func (c *ActiveOrderClient) endpoint(userID string) string {
	return fmt.Sprintf("%s/api/active-orders/%s", c.baseURL, url.PathEscape(userID))
}

func (c *ActiveOrderClient) Load(ctx context.Context, userID string) (*order.Snapshot, error) {
	var resp activeOrderBody
	err := httpx.DoJSON(ctx, c.http, http.MethodGet, c.endpoint(userID), c.token, nil, &resp)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, ErrNoActiveOrder
		}
		return nil, fmt.Errorf("load active order for %s: %w", userID, err)
	}
	if resp.Order == nil {
		return nil, ErrNoActiveOrder
	}
	return resp.Order, nil
}

func (c *ActiveOrderClient) Save(ctx context.Context, userID string, snap *order.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}
	body := activeOrderBody{Order: snap, TTLSeconds: int(ttl / time.Second)}
	if err := httpx.DoJSON(ctx, c.http, http.MethodPost, c.endpoint(userID), c.token, body, nil); err != nil {
		return fmt.Errorf("save active order for %s: %w", userID, err)
	}
	return nil
}

func (c *ActiveOrderClient) Clear(ctx context.Context, userID string) error {
	err := httpx.DoJSON(ctx, c.http, http.MethodDelete, c.endpoint(userID), c.token, nil, nil)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			// 已经不存在视为成功
			return nil
		}
		return fmt.Errorf("clear active order for %s: %w", userID, err)
	}
	return nil
}
