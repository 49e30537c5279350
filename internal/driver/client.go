package driver

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

// Snapshot 司机目录返回的司机信息（本服务只读）。
type Snapshot struct {
	FullName           string      `json:"fullName"`
	ProfilePicturePath string      `json:"profilePicturePath"`
	VehicleType        string      `json:"vehicleType"`
	MobileNumber       string      `json:"mobileNumber"`
	Location           GeoLocation `json:"location"`
}

// GeoLocation GeoJSON Point。注意 coordinates 是 [lng, lat]，
// 与展示用的 lat/lng 顺序相反，转换集中在 Point 一处完成。
type GeoLocation struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Point 把 GeoJSON 坐标转换为 lat/lng；坐标缺失或残缺时 ok=false。
func (g GeoLocation) Point() (order.GeoPoint, bool) {
	if len(g.Coordinates) < 2 {
		return order.GeoPoint{}, false
	}
	return order.GeoPoint{Lat: g.Coordinates[1], Lng: g.Coordinates[0]}, true
}

// Client 司机目录 REST 客户端：GET {base}/api/drivers/{driverId}
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient 创建司机目录客户端
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type getDriverResponse struct {
	Partner *Snapshot `json:"partner"`
}

// GetDriver 按 ID 拉取司机信息。
func (c *Client) GetDriver(ctx context.Context, driverID string) (*Snapshot, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, fmt.Errorf("driver_id required")
	}

	u := fmt.Sprintf("%s/api/drivers/%s", c.baseURL, url.PathEscape(driverID))
	var resp getDriverResponse
	if err := httpx.DoJSON(ctx, c.http, http.MethodGet, u, c.token, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch driver %s: %w", driverID, err)
	}
	if resp.Partner == nil {
		return nil, fmt.Errorf("driver %s not found in response", driverID)
	}
	return resp.Partner, nil
}
