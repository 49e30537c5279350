package route

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/middleware"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

func TestHTTPDirectionsRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/directions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("origin") == "" || q.Get("destination") == "" {
			t.Fatalf("missing origin/destination: %s", r.URL.RawQuery)
		}
		if q.Get("mode") != "driving" {
			t.Fatalf("expected driving mode, got %s", q.Get("mode"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"routes": [{
				"overview_polyline": {"points": "abc123"},
				"legs": [{
					"distance": {"value": 3400, "text": "3.4 km"},
					"duration": {"value": 720, "text": "12 mins"}
				}]
			}]
		}`))
	}))
	defer srv.Close()

	d := NewHTTPDirections(srv.URL, "driving", time.Second, nil)
	res, err := d.Route(context.Background(), order.GeoPoint{Lat: 12.95, Lng: 77.60}, order.GeoPoint{Lat: 12.97, Lng: 77.59})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.DistanceMeters != 3400 || res.DurationSeconds != 720 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.DistanceText != "3.4 km" || res.Polyline != "abc123" {
		t.Fatalf("unexpected texts: %+v", res)
	}
}

func TestHTTPDirectionsZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "routes": []}`))
	}))
	defer srv.Close()

	d := NewHTTPDirections(srv.URL, "", time.Second, nil)
	if _, err := d.Route(context.Background(), order.GeoPoint{}, order.GeoPoint{}); err != ErrNoRoute {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestHTTPDirectionsBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := middleware.NewCircuitBreaker("directions", 2, time.Minute)
	d := NewHTTPDirections(srv.URL, "", time.Second, breaker)

	for i := 0; i < 2; i++ {
		if _, err := d.Route(context.Background(), order.GeoPoint{}, order.GeoPoint{}); err == nil {
			t.Fatalf("expected error from failing provider")
		}
	}
	if breaker.GetState() != middleware.StateOpen {
		t.Fatalf("expected breaker open after consecutive failures")
	}
	// 熔断期间不应再打到下游
	if _, err := d.Route(context.Background(), order.GeoPoint{}, order.GeoPoint{}); err == nil {
		t.Fatalf("expected short-circuit error while breaker open")
	}
}
