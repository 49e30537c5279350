package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// fakeDurable 可控的持久化侧存储
type fakeDurable struct {
	mu      sync.Mutex
	records map[string]*order.Snapshot
	failAll bool
	saves   int
	clears  int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{records: make(map[string]*order.Snapshot)}
}

func (f *fakeDurable) Load(ctx context.Context, userID string) (*order.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("durable store down")
	}
	snap, ok := f.records[userID]
	if !ok {
		return nil, ErrNoActiveOrder
	}
	return snap.Clone(), nil
}

func (f *fakeDurable) Save(ctx context.Context, userID string, snap *order.Snapshot, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failAll {
		return errors.New("durable store down")
	}
	f.records[userID] = snap.Clone()
	return nil
}

func (f *fakeDurable) Clear(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	if f.failAll {
		return errors.New("durable store down")
	}
	delete(f.records, userID)
	return nil
}

func snapFixture(userID string) *order.Snapshot {
	return &order.Snapshot{
		OrderID:  "o-1",
		UserID:   userID,
		DriverID: "d-1",
		Status:   order.StatusDriverAssigned,
		Pickup:   order.Location{Address: "MG Road 1"},
		Drop:     order.Location{Address: "Church Street 5"},
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	durable := newFakeDurable()
	s := New(durable, nil)
	ctx := context.Background()

	if ok := s.Save(ctx, "u-1", snapFixture("u-1"), time.Hour); !ok {
		t.Fatalf("expected save to succeed")
	}

	got, err := s.Load(ctx, "u-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.OrderID != "o-1" || got.Status != order.StatusDriverAssigned {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestStoreDurableFailureFallsBackToCache(t *testing.T) {
	durable := newFakeDurable()
	s := New(durable, nil)
	ctx := context.Background()

	if ok := s.Save(ctx, "u-1", snapFixture("u-1"), time.Hour); !ok {
		t.Fatalf("expected save to succeed")
	}

	// 持久化存储挂掉：Save 返回 false 但缓存仍然更新
	durable.failAll = true
	snap := snapFixture("u-1")
	snap.Status = order.StatusPickedUp
	if ok := s.Save(ctx, "u-1", snap, time.Hour); ok {
		t.Fatalf("expected save to report durable failure")
	}

	got, err := s.Load(ctx, "u-1")
	if err != nil {
		t.Fatalf("expected fallback load to succeed: %v", err)
	}
	if got.Status != order.StatusPickedUp {
		t.Fatalf("expected cached status picked_up, got %s", got.Status)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s := New(newFakeDurable(), nil)
	if _, err := s.Load(context.Background(), "nobody"); err != ErrNoActiveOrder {
		t.Fatalf("expected ErrNoActiveOrder, got %v", err)
	}
}

func TestStoreClear(t *testing.T) {
	durable := newFakeDurable()
	s := New(durable, nil)
	ctx := context.Background()

	s.Save(ctx, "u-1", snapFixture("u-1"), time.Hour)
	if ok := s.Clear(ctx, "u-1"); !ok {
		t.Fatalf("expected clear to succeed")
	}
	if s.LastKnown("u-1") != nil {
		t.Fatalf("expected cache to be cleared")
	}
	if _, err := s.Load(ctx, "u-1"); err != ErrNoActiveOrder {
		t.Fatalf("expected ErrNoActiveOrder after clear, got %v", err)
	}
}

func TestLastKnownReturnsCopy(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()
	s.Save(ctx, "u-1", snapFixture("u-1"), 0)

	a := s.LastKnown("u-1")
	a.Status = order.StatusCompleted

	b := s.LastKnown("u-1")
	if b.Status != order.StatusDriverAssigned {
		t.Fatalf("LastKnown leaked shared state: %s", b.Status)
	}
}
