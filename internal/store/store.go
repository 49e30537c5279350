package store

import (
	"context"
	"sync"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// Store 订单状态存储：持久化侧存储 + 本地缓存的写穿组合。
//
// 语义（其余组件都依赖这几条）：
//   - Save 总是先写本地缓存（不会失败），持久化写失败只体现在返回值上，
//     系统其余部分可以乐观地继续工作；
//   - Load 优先读持久化存储，失败时回落到本地缓存并记日志，绝不静默；
//   - LastKnown 是同步访问器，后台回调（定时器、socket 回调）一律通过它读
//     当前状态，而不是持有订阅时捕获的快照。
type Store struct {
	durable DurableStore
	log     logger.Logger

	mu    sync.RWMutex
	cache map[string]*order.Snapshot
}

// New 创建 Store。durable 可以为 nil（纯本地模式，测试用）。
func New(durable DurableStore, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{
		durable: durable,
		log:     log,
		cache:   make(map[string]*order.Snapshot),
	}
}

// Load 读取用户的活跃订单。持久化读取失败时回落本地缓存；
// 两边都没有时返回 ErrNoActiveOrder。
func (s *Store) Load(ctx context.Context, userID string) (*order.Snapshot, error) {
	if s.durable != nil {
		snap, err := s.durable.Load(ctx, userID)
		if err == nil {
			s.setCache(userID, snap)
			return snap.Clone(), nil
		}
		if err == ErrNoActiveOrder {
			// 持久化侧明确说没有，本地缓存也不再可信
			s.dropCache(userID)
			return nil, ErrNoActiveOrder
		}
		s.log.Warnf("durable load failed for user=%s, falling back to local cache: %v", userID, err)
	}

	if cached := s.LastKnown(userID); cached != nil {
		return cached, nil
	}
	return nil, ErrNoActiveOrder
}

// Save 写穿：本地缓存必定成功，持久化写失败返回 false（不是错误），
// 由调用方决定是否提示“进度可能未同步”。
func (s *Store) Save(ctx context.Context, userID string, snap *order.Snapshot, ttl time.Duration) bool {
	if snap == nil {
		return false
	}
	s.setCache(userID, snap)

	if s.durable == nil {
		return true
	}
	if err := s.durable.Save(ctx, userID, snap, ttl); err != nil {
		s.log.Warnf("durable save failed for user=%s (local cache is authoritative): %v", userID, err)
		return false
	}
	return true
}

// Clear 同时清掉本地与持久化副本。
func (s *Store) Clear(ctx context.Context, userID string) bool {
	s.dropCache(userID)

	if s.durable == nil {
		return true
	}
	if err := s.durable.Clear(ctx, userID); err != nil {
		s.log.Warnf("durable clear failed for user=%s: %v", userID, err)
		return false
	}
	return true
}

// LastKnown 返回最近一次写入的快照副本；没有时返回 nil。
func (s *Store) LastKnown(userID string) *order.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[userID].Clone()
}

func (s *Store) setCache(userID string, snap *order.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[userID] = snap.Clone()
}

func (s *Store) dropCache(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, userID)
}
