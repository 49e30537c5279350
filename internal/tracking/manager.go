package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
	"github.com/SwiftCourier/SwiftCourier/internal/poller"
	"github.com/SwiftCourier/SwiftCourier/internal/route"
	"github.com/SwiftCourier/SwiftCourier/internal/session"
	"github.com/SwiftCourier/SwiftCourier/internal/store"
)

// ManagerConfig Manager 装配参数。
type ManagerConfig struct {
	PollInterval   time.Duration
	MaxFailures    int
	ActiveOrderTTL time.Duration
	CleanupDelay   time.Duration
}

// Manager 按用户维护追踪会话，保证每个用户最多一个 Tracker。
// 会话失效（登出/互踢）通过事件总线广播，Manager 收到后停掉该用户的追踪。
type Manager struct {
	store       *store.Store
	directions  route.Directions
	directory   poller.Directory
	syncer      Syncer
	newListener ListenerFactory
	bus         *session.Bus
	cfg         ManagerConfig
	log         logger.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker

	stopWatch func()
}

// NewManager 创建管理器并开始监听会话失效事件。
func NewManager(
	st *store.Store,
	directions route.Directions,
	directory poller.Directory,
	syncer Syncer,
	newListener ListenerFactory,
	bus *session.Bus,
	cfg ManagerConfig,
	log logger.Logger,
) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	m := &Manager{
		store:       st,
		directions:  directions,
		directory:   directory,
		syncer:      syncer,
		newListener: newListener,
		bus:         bus,
		cfg:         cfg,
		log:         log,
		trackers:    make(map[string]*Tracker),
	}
	if bus != nil {
		ch, cancel := bus.Subscribe(session.TopicSessionInvalidated)
		m.stopWatch = cancel
		go m.watchSessions(ch)
	}
	return m
}

// StartTracking 为用户启动追踪会话。已有会话时直接复用（幂等）。
// 用户没有活跃订单时返回 store.ErrNoActiveOrder。
func (m *Manager) StartTracking(ctx context.Context, userID string) (*Tracker, error) {
	m.mu.Lock()
	if t, ok := m.trackers[userID]; ok {
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()

	t := NewTracker(userID, Deps{
		Store:          m.store,
		Planner:        route.NewPlanner(m.directions, m.log),
		Poller:         poller.New(m.directory, m.cfg.PollInterval, m.cfg.MaxFailures, m.log),
		NewListener:    m.newListener,
		Sync:           m.syncer,
		Log:            m.log,
		ActiveOrderTTL: m.cfg.ActiveOrderTTL,
		CleanupDelay:   m.cfg.CleanupDelay,
		OnCompleted: func(snap *order.Snapshot) {
			m.onCompleted(userID, snap)
		},
	})
	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.trackers[userID]; ok {
		// 并发 Start 竞态：保留先注册的会话
		m.mu.Unlock()
		t.Stop()
		return existing, nil
	}
	m.trackers[userID] = t
	m.mu.Unlock()

	m.log.Infof("tracking started for user=%s", userID)
	return t, nil
}

// Tracker 返回用户的活跃追踪会话；没有时返回 nil。
func (m *Manager) Tracker(userID string) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackers[userID]
}

// StopTracking 停止并移除用户的追踪会话。没有会话时是 no-op。
func (m *Manager) StopTracking(userID string) {
	m.mu.Lock()
	t, ok := m.trackers[userID]
	delete(m.trackers, userID)
	m.mu.Unlock()
	if ok {
		t.Stop()
		m.log.Infof("tracking stopped for user=%s", userID)
	}
}

// Close 停掉全部会话与总线监听。
func (m *Manager) Close() {
	if m.stopWatch != nil {
		m.stopWatch()
	}
	m.mu.Lock()
	trackers := m.trackers
	m.trackers = make(map[string]*Tracker)
	m.mu.Unlock()
	for _, t := range trackers {
		t.Stop()
	}
}

func (m *Manager) onCompleted(userID string, snap *order.Snapshot) {
	m.mu.Lock()
	delete(m.trackers, userID)
	m.mu.Unlock()
	if snap != nil {
		// 评价页交接：追踪视图销毁后，订单概要交给评价流程
		m.log.Infof("order %s delivered for user=%s, handing off to rating flow", snap.OrderID, userID)
	}
}

func (m *Manager) watchSessions(ch <-chan string) {
	for userID := range ch {
		m.log.Infof("session invalidated for user=%s, stopping tracking", userID)
		m.StopTracking(userID)
	}
}
