package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
	"github.com/SwiftCourier/SwiftCourier/internal/ordersync"
	"github.com/SwiftCourier/SwiftCourier/internal/poller"
	"github.com/SwiftCourier/SwiftCourier/internal/realtime"
	"github.com/SwiftCourier/SwiftCourier/internal/route"
	"github.com/SwiftCourier/SwiftCourier/internal/store"
)

// EventSource 一条订单实时通道（一次性：一个实例服务一次订阅）。
type EventSource interface {
	Subscribe(ctx context.Context, orderID, userID string, handler realtime.Handler) error
	Unsubscribe()
}

// ListenerFactory 为每次追踪会话创建新的实时通道。
type ListenerFactory func() EventSource

// Syncer 把本地状态变化回写到后端订单记录。
type Syncer interface {
	PushStatus(ctx context.Context, orderID string, st order.Status) error
	PushOTP(ctx context.Context, orderID, otpType, otp string) error
}

// View 追踪视图的只读状态，由 HTTP 层序列化给调用方。
type View struct {
	Order               *order.Snapshot `json:"order"`
	DriverPosition      *order.GeoPoint `json:"driver_position,omitempty"`
	Route               route.State     `json:"route"`
	TrackingUnavailable bool            `json:"tracking_unavailable"`
}

// Deps Tracker 的全部依赖，由 Manager 装配。
type Deps struct {
	Store       *store.Store
	Planner     *route.Planner
	Poller      *poller.Poller
	NewListener ListenerFactory
	Sync        Syncer
	Log         logger.Logger

	ActiveOrderTTL time.Duration
	CleanupDelay   time.Duration

	// OnCompleted 在订单完成、延迟清理执行后回调一次（评价页交接）。
	OnCompleted func(snap *order.Snapshot)
}

// Tracker 单个用户的活跃配送追踪会话。
//
// 它把各组件接成闭环：实时事件推进状态机，轮询器喂司机位置，
// 规划器按状态对应的终点算路线，存储层保底，变化异步回写后端。
// 一个 Tracker 只追踪一个用户的一个活跃订单；订单完成后延迟清理并自毁。
type Tracker struct {
	userID string
	deps   Deps
	log    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  EventSource
	driverPos *order.GeoPoint

	teardownOnce sync.Once
	cleanupOnce  sync.Once
}

// NewTracker 创建追踪会话。Start 之前不产生任何后台活动。
func NewTracker(userID string, deps Deps) *Tracker {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	if deps.CleanupDelay <= 0 {
		deps.CleanupDelay = 10 * time.Second
	}
	return &Tracker{
		userID: userID,
		deps:   deps,
		log:    log,
	}
}

// Start 恢复活跃订单并启动实时通道与位置轮询。
// 没有活跃订单时返回 store.ErrNoActiveOrder。
func (t *Tracker) Start(ctx context.Context) error {
	snap, err := t.deps.Store.Load(ctx, t.userID)
	if err != nil {
		return err
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())

	// 取件码在司机确认接单起就要可见；恢复会话时补齐缺失的码
	if otp, generated := order.EnsurePickupOTP(snap); generated {
		t.deps.Store.Save(ctx, t.userID, snap, t.deps.ActiveOrderTTL)
		go t.pushOTP(snap.OrderID, ordersync.OTPTypePickup, otp)
	}

	if snap.Status == order.StatusCompleted {
		// 终态订单没有可追踪的过程，直接走延迟清理
		t.scheduleCleanup()
		return nil
	}

	l := t.deps.NewListener()
	if err := l.Subscribe(t.ctx, snap.OrderID, t.userID, t.handleEvent); err != nil {
		t.cancel()
		return err
	}
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()

	t.deps.Poller.Start(t.ctx, snap.OrderID, snap.DriverID, t.handleDriverMove, t.handleDegraded)
	return nil
}

// Stop 销毁追踪视图：停掉通道、轮询与在途路线请求。
// 不清除存储的订单，下次 Start 时可以恢复。可重复调用。
func (t *Tracker) Stop() {
	t.teardown()
}

// State 返回当前视图状态的副本。
func (t *Tracker) State() View {
	t.mu.Lock()
	var pos *order.GeoPoint
	if t.driverPos != nil {
		cp := *t.driverPos
		pos = &cp
	}
	t.mu.Unlock()

	return View{
		Order:               t.deps.Store.LastKnown(t.userID),
		DriverPosition:      pos,
		Route:               t.deps.Planner.State(),
		TrackingUnavailable: t.deps.Poller.Unavailable(),
	}
}

// handleEvent 实时事件 -> 状态推进。乱序与重复事件由状态机吸收。
func (t *Tracker) handleEvent(event string) {
	var target order.Status
	switch event {
	case realtime.EventDriverArrivedPickup:
		target = order.StatusDriverArrived
	case realtime.EventPickupVerified:
		target = order.StatusPickedUp
	case realtime.EventDeliveryCompleted:
		target = order.StatusCompleted
	default:
		t.log.Debugf("ignoring realtime event %q for user=%s", event, t.userID)
		return
	}

	snap := t.deps.Store.LastKnown(t.userID)
	if snap == nil {
		return
	}
	changed, err := order.Advance(snap, target, time.Now())
	if err != nil {
		t.log.Warnf("event %q rejected for order=%s: %v", event, snap.OrderID, err)
		return
	}
	if !changed {
		return
	}

	// 送达码在取件核验通过的瞬间生成
	if newOTP, generated := order.EnsureDropoffOTP(snap); generated {
		go t.pushOTP(snap.OrderID, ordersync.OTPTypeDropoff, newOTP)
	}

	t.deps.Store.Save(t.ctx, t.userID, snap, t.deps.ActiveOrderTTL)
	go t.pushStatus(snap.OrderID, snap.Status)

	if snap.Status == order.StatusCompleted {
		t.deps.Planner.Reset()
		t.deps.Poller.Stop()
		t.scheduleCleanup()
		return
	}

	// 状态变了，终点可能随之变化（arrived->取件点不变，picked_up->切到送达点）
	t.mu.Lock()
	pos := t.driverPos
	t.mu.Unlock()
	if pos != nil {
		t.deps.Planner.Trigger(t.ctx, *pos, snap)
	}
}

// handleDriverMove 司机位置变化 -> 记录位置并触发路线重算。
func (t *Tracker) handleDriverMove(pos order.GeoPoint) {
	snap := t.deps.Store.LastKnown(t.userID)
	if snap == nil || snap.Status == order.StatusCompleted {
		return
	}

	t.mu.Lock()
	cp := pos
	t.driverPos = &cp
	t.mu.Unlock()

	t.deps.Planner.Trigger(t.ctx, pos, snap)
}

func (t *Tracker) handleDegraded() {
	t.log.Warnf("live tracking degraded for user=%s: driver location unavailable", t.userID)
}

// scheduleCleanup 订单完成后保留视图一段时间（用户看到“已送达”），
// 随后清掉存储并销毁会话。整个生命周期内最多执行一次。
func (t *Tracker) scheduleCleanup() {
	t.cleanupOnce.Do(func() {
		final := t.deps.Store.LastKnown(t.userID)
		time.AfterFunc(t.deps.CleanupDelay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			t.deps.Store.Clear(ctx, t.userID)
			t.teardown()
			if t.deps.OnCompleted != nil {
				t.deps.OnCompleted(final)
			}
		})
	})
}

func (t *Tracker) teardown() {
	t.teardownOnce.Do(func() {
		t.mu.Lock()
		l := t.listener
		t.listener = nil
		t.mu.Unlock()
		if l != nil {
			l.Unsubscribe()
		}
		t.deps.Poller.Stop()
		t.deps.Planner.Reset()
		if t.cancel != nil {
			t.cancel()
		}
	})
}

func (t *Tracker) pushStatus(orderID string, st order.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.deps.Sync.PushStatus(ctx, orderID, st); err != nil {
		t.log.Warnf("order progress may be out of sync with backend: %v", err)
	}
}

func (t *Tracker) pushOTP(orderID, otpType, otp string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.deps.Sync.PushOTP(ctx, orderID, otpType, otp); err != nil {
		t.log.Warnf("%s otp may be out of sync with backend: %v", otpType, err)
	}
}
