package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/gorilla/websocket"
)

// 实时通道上有名字的入站事件。
const (
	EventDriverArrivedPickup = "driver_arrived_pickup"
	EventPickupVerified      = "pickup_verified"
	EventDeliveryCompleted   = "delivery_completed"

	eventJoinOrderRoom = "join_order_room"
)

// Handler 收到入站事件时回调（事件名，不含 payload；房间上下文已隐含订单）。
type Handler func(event string)

// Envelope 通道上的消息信封。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinRoomPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
}

// Listener 每个活跃订单一条实时通道。
//
// 行为约束：
//   - 连上后先发 join_order_room 加入订单房间；
//   - 断线自动重连（指数退避），房间成员关系不跨连接存活，
//     因此每次重连后必须重新加入同一个房间；
//   - Unsubscribe 恰好调用一次即可，重复调用安全；之后不再重连。
//
// Listener 是一次性的：一个实例服务一个订单的一次订阅。
type Listener struct {
	url          string
	log          logger.Logger
	dialer       *websocket.Dialer
	reconnectMin time.Duration
	reconnectMax time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	closed     chan struct{}
	closeOnce  sync.Once
	subscribed bool
}

// NewListener 创建实时通道监听器
func NewListener(url string, reconnectMin, reconnectMax time.Duration, log logger.Logger) *Listener {
	if reconnectMin <= 0 {
		reconnectMin = 500 * time.Millisecond
	}
	if reconnectMax < reconnectMin {
		reconnectMax = 15 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Listener{
		url:          url,
		log:          log,
		dialer:       websocket.DefaultDialer,
		reconnectMin: reconnectMin,
		reconnectMax: reconnectMax,
		closed:       make(chan struct{}),
	}
}

// Subscribe 打开通道并加入订单房间。每个 Listener 只允许订阅一次。
func (l *Listener) Subscribe(ctx context.Context, orderID, userID string, handler Handler) error {
	l.mu.Lock()
	if l.subscribed {
		l.mu.Unlock()
		return fmt.Errorf("listener already subscribed")
	}
	l.subscribed = true
	l.mu.Unlock()

	go l.run(ctx, orderID, userID, handler)
	return nil
}

// Unsubscribe 关闭通道并停止重连。重复调用安全。
func (l *Listener) Unsubscribe() {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.mu.Lock()
		if l.conn != nil {
			_ = l.conn.Close()
		}
		l.mu.Unlock()
	})
}

func (l *Listener) run(ctx context.Context, orderID, userID string, handler Handler) {
	backoff := l.reconnectMin

	for {
		select {
		case <-l.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.log.Warnf("realtime dial failed, retrying in %s: %v", backoff, err)
			if !l.sleep(ctx, backoff) {
				return
			}
			backoff = l.nextBackoff(backoff)
			continue
		}

		// 房间成员关系不跨连接存活：每次（重）连后都要重新 join
		if err := l.join(conn, orderID, userID); err != nil {
			l.log.Warnf("join order room failed: %v", err)
			_ = conn.Close()
			if !l.sleep(ctx, backoff) {
				return
			}
			backoff = l.nextBackoff(backoff)
			continue
		}

		if !l.publishConn(conn) {
			// Unsubscribe 抢在发布前触发，closeOnce 已经跑过，
			// 这条新连接只能由本循环自己收掉
			_ = conn.Close()
			return
		}
		backoff = l.reconnectMin

		l.readLoop(conn, handler)

		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		_ = conn.Close()

		select {
		case <-l.closed:
			return
		case <-ctx.Done():
			return
		default:
			l.log.Warn("realtime channel disconnected, reconnecting")
		}
	}
}

// publishConn 把新连接放到 Unsubscribe 可见的位置。关闭检查和赋值在同一把锁里，
// 保证要么 Unsubscribe 能关到它，要么这里拒收（返回 false，由调用方关闭）。
func (l *Listener) publishConn(conn *websocket.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.closed:
		return false
	default:
	}
	l.conn = conn
	return true
}

func (l *Listener) join(conn *websocket.Conn, orderID, userID string) error {
	payload, err := json.Marshal(joinRoomPayload{OrderID: orderID, UserID: userID})
	if err != nil {
		return err
	}
	return conn.WriteJSON(Envelope{Event: eventJoinOrderRoom, Data: payload})
}

func (l *Listener) readLoop(conn *websocket.Conn, handler Handler) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event == "" {
			continue
		}
		if handler != nil {
			handler(env.Event)
		}
	}
}

// sleep 可被 Unsubscribe / ctx 打断；返回 false 表示监听器应当退出。
func (l *Listener) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-l.closed:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *Listener) nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > l.reconnectMax {
		next = l.reconnectMax
	}
	return next
}
