package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetDriver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/drivers/d-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			t.Fatalf("missing bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"partner": {
				"fullName": "Ravi Kumar",
				"vehicleType": "bike",
				"mobileNumber": "9999900000",
				"location": {"type": "Point", "coordinates": [77.5946, 12.9716]}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "svc-token", time.Second)
	snap, err := c.GetDriver(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("GetDriver: %v", err)
	}
	if snap.FullName != "Ravi Kumar" {
		t.Fatalf("fullName mismatch: %s", snap.FullName)
	}

	// GeoJSON 是 [lng, lat]，Point 必须换回 lat/lng
	pt, ok := snap.Location.Point()
	if !ok {
		t.Fatalf("expected coordinates present")
	}
	if pt.Lat != 12.9716 || pt.Lng != 77.5946 {
		t.Fatalf("geojson order not handled: %+v", pt)
	}
}

func TestGetDriverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.GetDriver(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for 404")
	}
	if _, err := c.GetDriver(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty driver id")
	}
}

func TestGeoLocationPointMissing(t *testing.T) {
	var g GeoLocation
	if _, ok := g.Point(); ok {
		t.Fatalf("expected ok=false for empty coordinates")
	}
	g.Coordinates = []float64{77.59}
	if _, ok := g.Point(); ok {
		t.Fatalf("expected ok=false for partial coordinates")
	}
}
