package poller

import (
	"context"
	"sync"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/driver"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// Directory 司机目录（按 ID 查询当前位置）。
type Directory interface {
	GetDriver(ctx context.Context, driverID string) (*driver.Snapshot, error)
}

// Poller 司机位置轮询器。
//
// 行为约束：
//   - Start 幂等：同一订单重复 Start 不会产生第二个定时器；
//   - 每个 tick 拉取司机信息，坐标按值比较，变化时才回调 onMove；
//   - 连续失败达到上限后自停并标记“跟踪不可用”，这是降级而不是订单失败，
//     订单状态不受影响；
//   - Stop 必须在订单完成或视图销毁时调用，否则会泄漏后台定时器。
type Poller struct {
	directory   Directory
	interval    time.Duration
	maxFailures int
	log         logger.Logger

	mu          sync.Mutex
	orderID     string
	driverID    string
	onMove      func(order.GeoPoint)
	onDegraded  func()
	stop        chan struct{}
	running     bool
	failures    int
	lastPos     *order.GeoPoint
	unavailable bool
}

// New 创建轮询器
func New(directory Directory, interval time.Duration, maxFailures int, log logger.Logger) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Poller{
		directory:   directory,
		interval:    interval,
		maxFailures: maxFailures,
		log:         log,
	}
}

// Start 开始以固定间隔轮询指定司机的位置。
// onMove 在坐标发生变化时回调；onDegraded 在连续失败达到上限、轮询自停时回调一次。
// 对同一订单重复调用是 no-op。
func (p *Poller) Start(ctx context.Context, orderID, driverID string, onMove func(order.GeoPoint), onDegraded func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running && p.orderID == orderID {
		return
	}
	if p.running {
		// 换订单：先停掉旧循环
		close(p.stop)
	}

	p.orderID = orderID
	p.driverID = driverID
	p.onMove = onMove
	p.onDegraded = onDegraded
	p.stop = make(chan struct{})
	p.running = true
	p.failures = 0
	p.lastPos = nil
	p.unavailable = false

	go p.loop(ctx, p.stop)
}

// Stop 停止轮询。可重复调用。
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.stop)
	p.running = false
}

// Unavailable 连续失败达到上限后为 true（“实时跟踪不可用”提示）。
func (p *Poller) Unavailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unavailable
}

// Running 是否有活跃的轮询循环。
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.tick(ctx, stop) {
				return
			}
		}
	}
}

// tick 执行一次拉取；返回 false 表示轮询应当终止。
// stop 是本循环持有的停止通道，拉取期间锁是放开的，回来落账前
// 必须先确认自己没有被 Stop 或换单重启淘汰。
func (p *Poller) tick(ctx context.Context, stop chan struct{}) bool {
	p.mu.Lock()
	driverID := p.driverID
	p.mu.Unlock()

	tickCtx, cancel := context.WithTimeout(ctx, p.interval)
	snap, err := p.directory.GetDriver(tickCtx, driverID)
	cancel()

	if err != nil {
		return p.recordFailure(err, stop)
	}

	pos, ok := snap.Location.Point()
	if !ok {
		return p.recordFailure(errDriverNoLocation, stop)
	}

	p.mu.Lock()
	if p.stop != stop {
		p.mu.Unlock()
		return false
	}
	p.failures = 0
	moved := p.lastPos == nil || !p.lastPos.Equal(pos)
	if moved {
		cp := pos
		p.lastPos = &cp
	}
	onMove := p.onMove
	p.mu.Unlock()

	if moved && onMove != nil {
		onMove(pos)
	}
	return true
}

func (p *Poller) recordFailure(err error, stop chan struct{}) bool {
	p.mu.Lock()
	// 在途拉取期间被 Stop 或换单重启淘汰：直接退出，stop 已由对方关闭，
	// 这里再 close 会 panic
	if !p.running || p.stop != stop {
		p.mu.Unlock()
		return false
	}
	p.failures++
	failures := p.failures
	p.log.Warnf("driver location poll failed (%d/%d): %v", failures, p.maxFailures, err)

	if failures < p.maxFailures {
		p.mu.Unlock()
		return true
	}

	// 连续失败到上限：自停并降级，不改变订单状态
	p.unavailable = true
	p.running = false
	close(p.stop)
	onDegraded := p.onDegraded
	p.mu.Unlock()

	p.log.Warn("driver location polling stopped: live tracking unavailable")
	if onDegraded != nil {
		onDegraded()
	}
	return false
}

type driverNoLocationError struct{}

func (driverNoLocationError) Error() string { return "driver has no location" }

var errDriverNoLocation = driverNoLocationError{}
