package route

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/httpx"
	"github.com/SwiftCourier/SwiftCourier/internal/common/middleware"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// ErrNoRoute 两点之间没有可行驶路线。
var ErrNoRoute = errors.New("no route found")

// Result 一次路径规划的结果（短暂有效，不持久化）。
type Result struct {
	DistanceMeters  int    `json:"distance_meters"`
	DurationSeconds int    `json:"duration_seconds"`
	DistanceText    string `json:"distance_text"`
	DurationText    string `json:"duration_text"`
	Polyline        string `json:"polyline,omitempty"` // 原始路线几何
}

// Directions 外部路径规划服务。
type Directions interface {
	Route(ctx context.Context, origin, dest order.GeoPoint) (*Result, error)
}

// HTTPDirections 路径规划服务的 HTTP 客户端，外面套一层熔断：
// 下游持续报错时短路请求，等恢复窗口后再放行试探。
type HTTPDirections struct {
	baseURL string
	mode    string
	http    *http.Client
	breaker *middleware.CircuitBreaker
}

// NewHTTPDirections 创建客户端
func NewHTTPDirections(baseURL, travelMode string, timeout time.Duration, breaker *middleware.CircuitBreaker) *HTTPDirections {
	if travelMode == "" {
		travelMode = "driving"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDirections{
		baseURL: strings.TrimRight(baseURL, "/"),
		mode:    travelMode,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

type directionsResponse struct {
	Status string `json:"status"`
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Value int    `json:"value"`
				Text  string `json:"text"`
			} `json:"distance"`
			Duration struct {
				Value int    `json:"value"`
				Text  string `json:"text"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route 请求 origin -> dest 的驾车路线，返回首条路线首段的距离/时长。
func (d *HTTPDirections) Route(ctx context.Context, origin, dest order.GeoPoint) (*Result, error) {
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	q.Set("destination", fmt.Sprintf("%f,%f", dest.Lat, dest.Lng))
	q.Set("mode", d.mode)
	u := fmt.Sprintf("%s/directions?%s", d.baseURL, q.Encode())

	var resp directionsResponse
	call := func() error {
		return httpx.DoJSON(ctx, d.http, http.MethodGet, u, "", nil, &resp)
	}

	var err error
	if d.breaker != nil {
		err = d.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("directions request: %w", err)
	}

	if resp.Status == "ZERO_RESULTS" {
		return nil, ErrNoRoute
	}
	if resp.Status != "" && resp.Status != "OK" {
		return nil, fmt.Errorf("directions provider status: %s", resp.Status)
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return nil, ErrNoRoute
	}

	leg := resp.Routes[0].Legs[0]
	return &Result{
		DistanceMeters:  leg.Distance.Value,
		DurationSeconds: leg.Duration.Value,
		DistanceText:    leg.Distance.Text,
		DurationText:    leg.Duration.Text,
		Polyline:        resp.Routes[0].OverviewPolyline.Points,
	}, nil
}
