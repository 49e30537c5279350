package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/driver"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
	"github.com/SwiftCourier/SwiftCourier/internal/poller"
	"github.com/SwiftCourier/SwiftCourier/internal/realtime"
	"github.com/SwiftCourier/SwiftCourier/internal/route"
	"github.com/SwiftCourier/SwiftCourier/internal/session"
	"github.com/SwiftCourier/SwiftCourier/internal/store"
)

type fakeDirections struct {
	mu    sync.Mutex
	calls []order.GeoPoint // 每次请求的终点
}

func (f *fakeDirections) Route(ctx context.Context, origin, dest order.GeoPoint) (*route.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dest)
	return &route.Result{DistanceMeters: 1200, DurationSeconds: 300}, nil
}

func (f *fakeDirections) destinations() []order.GeoPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]order.GeoPoint, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeDirectory struct {
	mu  sync.Mutex
	pos order.GeoPoint
}

func (f *fakeDirectory) GetDriver(ctx context.Context, driverID string) (*driver.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &driver.Snapshot{
		FullName: "王师傅",
		Location: driver.GeoLocation{Type: "Point", Coordinates: []float64{f.pos.Lng, f.pos.Lat}},
	}, nil
}

type fakeListener struct {
	mu          sync.Mutex
	handler     realtime.Handler
	unsubscribe int
}

func (f *fakeListener) Subscribe(ctx context.Context, orderID, userID string, h realtime.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return nil
}

func (f *fakeListener) Unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribe++
}

func (f *fakeListener) emit(event string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(event)
	}
}

func (f *fakeListener) unsubscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribe
}

type otpPush struct {
	orderID, otpType, otp string
}

type fakeSyncer struct {
	mu       sync.Mutex
	statuses []order.Status
	otps     []otpPush
}

func (f *fakeSyncer) PushStatus(ctx context.Context, orderID string, st order.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, st)
	return nil
}

func (f *fakeSyncer) PushOTP(ctx context.Context, orderID, otpType, otp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otps = append(f.otps, otpPush{orderID, otpType, otp})
	return nil
}

func (f *fakeSyncer) pushedOTPs() []otpPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]otpPush, len(f.otps))
	copy(out, f.otps)
	return out
}

func fptr(v float64) *float64 { return &v }

func testSnapshot(status order.Status) *order.Snapshot {
	return &order.Snapshot{
		OrderID:   "o-1",
		UserID:    "u-1",
		DriverID:  "d-1",
		Status:    status,
		Pickup:    order.Location{Address: "仓库", Lat: fptr(31.23), Lng: fptr(121.47)},
		Drop:      order.Location{Address: "收货点", Lat: fptr(31.30), Lng: fptr(121.55)},
		PickupOTP: "1234",
		Timestamp: time.Now(),
	}
}

type fixture struct {
	tracker    *Tracker
	store      *store.Store
	directions *fakeDirections
	listener   *fakeListener
	syncer     *fakeSyncer

	completedMu sync.Mutex
	completed   []*order.Snapshot
}

func newFixture(t *testing.T, snap *order.Snapshot, cleanupDelay time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		store:      store.New(nil, nil),
		directions: &fakeDirections{},
		listener:   &fakeListener{},
		syncer:     &fakeSyncer{},
	}
	ctx := context.Background()
	if snap != nil {
		f.store.Save(ctx, snap.UserID, snap, 0)
	}
	f.tracker = NewTracker("u-1", Deps{
		Store:        f.store,
		Planner:      route.NewPlanner(f.directions, nil),
		Poller:       poller.New(&fakeDirectory{pos: order.GeoPoint{Lat: 31.25, Lng: 121.49}}, time.Hour, 5, nil),
		NewListener:  func() EventSource { return f.listener },
		Sync:         f.syncer,
		CleanupDelay: cleanupDelay,
		OnCompleted: func(s *order.Snapshot) {
			f.completedMu.Lock()
			f.completed = append(f.completed, s)
			f.completedMu.Unlock()
		},
	})
	return f
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStartWithoutActiveOrder(t *testing.T) {
	f := newFixture(t, nil, time.Hour)
	if err := f.tracker.Start(context.Background()); !errors.Is(err, store.ErrNoActiveOrder) {
		t.Fatalf("Start err = %v, want ErrNoActiveOrder", err)
	}
}

func TestStartGeneratesMissingPickupOTP(t *testing.T) {
	snap := testSnapshot(order.StatusDriverAssigned)
	snap.PickupOTP = ""
	f := newFixture(t, snap, time.Hour)
	defer f.tracker.Stop()

	if err := f.tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := f.store.LastKnown("u-1")
	if len(got.PickupOTP) != 4 {
		t.Fatalf("pickup otp = %q, want 4 digits", got.PickupOTP)
	}
	waitUntil(t, time.Second, func() bool {
		otps := f.syncer.pushedOTPs()
		return len(otps) == 1 && otps[0].otpType == "pickup"
	})
}

// 取件核验通过：状态进入 picked_up，生成并上报送达码，取件码保持不变，
// 路线终点切换为送达点且恰好发出一次请求。
func TestPickupVerifiedFlow(t *testing.T) {
	snap := testSnapshot(order.StatusDriverArrived)
	f := newFixture(t, snap, time.Hour)
	defer f.tracker.Stop()

	if err := f.tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// 先喂一个司机位置，让后续触发有起点
	f.tracker.handleDriverMove(order.GeoPoint{Lat: 31.24, Lng: 121.48})
	waitUntil(t, time.Second, func() bool { return len(f.directions.destinations()) == 1 })
	// 等首个请求完全落账，避免后续触发被在途合并吃掉
	time.Sleep(20 * time.Millisecond)
	before := len(f.directions.destinations())

	f.listener.emit(realtime.EventPickupVerified)

	got := f.store.LastKnown("u-1")
	if got.Status != order.StatusPickedUp {
		t.Fatalf("status = %s, want picked_up", got.Status)
	}
	if got.PickupOTP != "1234" {
		t.Fatalf("pickup otp changed: %q", got.PickupOTP)
	}
	if len(got.DropoffOTP) != 4 {
		t.Fatalf("dropoff otp = %q, want 4 digits", got.DropoffOTP)
	}

	waitUntil(t, time.Second, func() bool { return len(f.directions.destinations()) == before+1 })
	dests := f.directions.destinations()
	want := order.GeoPoint{Lat: 31.30, Lng: 121.55}
	if !dests[len(dests)-1].Equal(want) {
		t.Fatalf("route destination = %+v, want drop point %+v", dests[len(dests)-1], want)
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(f.directions.destinations()); got != before+1 {
		t.Fatalf("route requests after pickup = %d, want exactly 1 more", got-before)
	}

	waitUntil(t, time.Second, func() bool {
		for _, p := range f.syncer.pushedOTPs() {
			if p.otpType == "dropoff" && p.otp == got.DropoffOTP {
				return true
			}
		}
		return false
	})
}

// 重复事件是 no-op：不重写存储、不重发路线请求、不重新生成 OTP。
func TestDuplicateEventIgnored(t *testing.T) {
	snap := testSnapshot(order.StatusPickedUp)
	snap.DropoffOTP = "9876"
	f := newFixture(t, snap, time.Hour)
	defer f.tracker.Stop()

	if err := f.tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.listener.emit(realtime.EventPickupVerified)
	f.listener.emit(realtime.EventDriverArrivedPickup) // 回退事件同样丢弃

	got := f.store.LastKnown("u-1")
	if got.Status != order.StatusPickedUp || got.DropoffOTP != "9876" {
		t.Fatalf("snapshot mutated by duplicate events: %+v", got)
	}
	if n := len(f.directions.destinations()); n != 0 {
		t.Fatalf("route requests = %d, want 0", n)
	}
}

// 订单完成：延迟清理恰好执行一次，存储清空，通道与轮询销毁，评价交接回调一次。
func TestDeliveryCompletedCleanup(t *testing.T) {
	snap := testSnapshot(order.StatusPickedUp)
	snap.DropoffOTP = "9876"
	f := newFixture(t, snap, 50*time.Millisecond)

	if err := f.tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.listener.emit(realtime.EventDeliveryCompleted)
	f.listener.emit(realtime.EventDeliveryCompleted) // 重复完成事件不应再次排程清理

	got := f.store.LastKnown("u-1")
	if got == nil || got.Status != order.StatusCompleted {
		t.Fatalf("status not completed before cleanup: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}

	waitUntil(t, 2*time.Second, func() bool { return f.store.LastKnown("u-1") == nil })

	waitUntil(t, time.Second, func() bool {
		f.completedMu.Lock()
		defer f.completedMu.Unlock()
		return len(f.completed) == 1
	})
	f.completedMu.Lock()
	final := f.completed[0]
	f.completedMu.Unlock()
	if final == nil || final.Status != order.StatusCompleted {
		t.Fatalf("rating handoff snapshot = %+v", final)
	}

	if f.listener.unsubscribed() == 0 {
		t.Fatalf("listener not unsubscribed after cleanup")
	}
	if f.tracker.deps.Poller.Running() {
		t.Fatalf("poller still running after completion")
	}

	// 再等一个清理窗口，确认清理没有第二次执行（回调仍是一次）
	time.Sleep(120 * time.Millisecond)
	f.completedMu.Lock()
	n := len(f.completed)
	f.completedMu.Unlock()
	if n != 1 {
		t.Fatalf("cleanup ran %d times, want once", n)
	}
}

// 完成后的位置回调不再更新视图、不再触发路线请求。
func TestDriverMoveAfterCompletionIgnored(t *testing.T) {
	snap := testSnapshot(order.StatusPickedUp)
	f := newFixture(t, snap, time.Hour)
	defer f.tracker.Stop()

	if err := f.tracker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.listener.emit(realtime.EventDeliveryCompleted)
	before := len(f.directions.destinations())

	f.tracker.handleDriverMove(order.GeoPoint{Lat: 31.26, Lng: 121.50})
	time.Sleep(50 * time.Millisecond)
	if n := len(f.directions.destinations()); n != before {
		t.Fatalf("route requests after completion = %d, want %d", n, before)
	}
}

func TestManagerOneTrackerPerUser(t *testing.T) {
	st := store.New(nil, nil)
	snap := testSnapshot(order.StatusDriverAssigned)
	st.Save(context.Background(), "u-1", snap, 0)

	bus := session.NewBus()
	m := NewManager(
		st,
		&fakeDirections{},
		&fakeDirectory{},
		&fakeSyncer{},
		func() EventSource { return &fakeListener{} },
		bus,
		ManagerConfig{PollInterval: time.Hour, MaxFailures: 5, CleanupDelay: time.Hour},
		nil,
	)
	defer m.Close()

	t1, err := m.StartTracking(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	t2, err := m.StartTracking(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("StartTracking again: %v", err)
	}
	if t1 != t2 {
		t.Fatalf("second StartTracking created a new tracker")
	}

	// 会话失效广播应停掉该用户的追踪
	bus.Publish(session.TopicSessionInvalidated, "u-1")
	waitUntil(t, time.Second, func() bool { return m.Tracker("u-1") == nil })
}

func TestManagerStartWithoutOrder(t *testing.T) {
	m := NewManager(
		store.New(nil, nil),
		&fakeDirections{},
		&fakeDirectory{},
		&fakeSyncer{},
		func() EventSource { return &fakeListener{} },
		nil,
		ManagerConfig{PollInterval: time.Hour},
		nil,
	)
	defer m.Close()

	if _, err := m.StartTracking(context.Background(), "u-404"); !errors.Is(err, store.ErrNoActiveOrder) {
		t.Fatalf("err = %v, want ErrNoActiveOrder", err)
	}
}
