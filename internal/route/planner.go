package route

import (
	"context"
	"errors"
	"sync"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// State 规划器当前的展示状态，由渲染层被动读取。
type State struct {
	Route       *Result `json:"route,omitempty"`
	Err         string  `json:"error,omitempty"`
	Calculating bool    `json:"calculating"`
}

// Planner 路线规划器。
//
// 行为约束：
//   - 同一时刻最多一个在途请求；在途期间新的触发被合并掉
//     （在途请求的结果照常生效，不再发重复请求），防止位置高频变化打爆下游；
//   - 结果带代数：请求发出时记下代数，解析完成时代数已变（Reset 过）则无条件丢弃；
//   - 失败时记录可展示的错误并清掉过期路线，下一次触发自动重试。
type Planner struct {
	directions Directions
	log        logger.Logger

	mu       sync.Mutex
	inFlight bool
	gen      uint64
	current  *Result
	lastErr  string
}

// NewPlanner 创建规划器
func NewPlanner(directions Directions, log logger.Logger) *Planner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Planner{
		directions: directions,
		log:        log,
	}
}

// DestinationFor 按当前状态决定路线终点：
// driver_assigned / driver_arrived -> 取件点；picked_up -> 送达点；
// completed 或坐标缺失 -> 无终点（ok=false）。
func DestinationFor(snap *order.Snapshot) (order.GeoPoint, bool) {
	if snap == nil {
		return order.GeoPoint{}, false
	}
	switch snap.Status {
	case order.StatusDriverAssigned, order.StatusDriverArrived:
		return snap.Pickup.Point()
	case order.StatusPickedUp:
		return snap.Drop.Point()
	default:
		return order.GeoPoint{}, false
	}
}

// Trigger 请求从司机当前位置到状态对应终点的路线。
// 无终点（completed、坐标缺失）或已有在途请求时直接返回。
func (p *Planner) Trigger(ctx context.Context, origin order.GeoPoint, snap *order.Snapshot) {
	dest, ok := DestinationFor(snap)
	if !ok {
		return
	}

	p.mu.Lock()
	if p.inFlight {
		// 合并：在途请求的结果稍后照常生效
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	gen := p.gen
	p.mu.Unlock()

	go p.run(ctx, gen, origin, dest)
}

func (p *Planner) run(ctx context.Context, gen uint64, origin, dest order.GeoPoint) {
	res, err := p.directions.Route(ctx, origin, dest)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen {
		// 期间被 Reset 过（例如订单已完成），迟到的结果无条件丢弃
		p.log.Debugf("discarding stale route result (gen %d != %d)", gen, p.gen)
		return
	}
	p.inFlight = false

	if err != nil {
		p.current = nil
		if errors.Is(err, ErrNoRoute) {
			p.lastErr = "no route found"
		} else {
			p.lastErr = "route calculation failed"
		}
		p.log.Warnf("route request failed: %v", err)
		return
	}
	p.current = res
	p.lastErr = ""
}

// Reset 清空路线状态并使所有在途请求的结果失效。
// 订单完成或跟踪视图销毁时调用。
func (p *Planner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.inFlight = false
	p.current = nil
	p.lastErr = ""
}

// State 返回当前展示状态的副本。
func (p *Planner) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{
		Err:         p.lastErr,
		Calculating: p.inFlight,
	}
	if p.current != nil {
		res := *p.current
		st.Route = &res
	}
	return st
}
