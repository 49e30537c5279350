package order

import "time"

// Status 配送状态枚举（持久化为字符串）。
type Status string

const (
	StatusDriverAssigned Status = "driver_assigned" // 已分配司机，司机前往取件点
	StatusDriverArrived  Status = "driver_arrived"  // 司机到达取件点，待取件核验
	StatusPickedUp       Status = "picked_up"       // 已取件，配送中
	StatusCompleted      Status = "completed"       // 已送达（终态）
)

// statusRank 定义状态的单向顺序。状态只允许向前推进，允许跳跃（例如漏掉
// driver_arrived 事件后直接收到 picked_up），不允许回退。
var statusRank = map[Status]int{
	StatusDriverAssigned: 1,
	StatusDriverArrived:  2,
	StatusPickedUp:       3,
	StatusCompleted:      4,
}

// Rank 返回状态在推进顺序中的位置；未知状态返回 0。
func Rank(s Status) int {
	return statusRank[s]
}

// Known 判断是否是已定义的状态。
func Known(s Status) bool {
	_, ok := statusRank[s]
	return ok
}

// GeoPoint 经纬度坐标（lat/lng 顺序，展示用）。
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Equal 按值比较两个坐标。轮询场景用它判断司机是否真的移动了，
// 避免每次拉取都触发路线重算。
func (p GeoPoint) Equal(o GeoPoint) bool {
	return p.Lat == o.Lat && p.Lng == o.Lng
}

// Location 地址 + 可选坐标。坐标缺失时无法作为路线终点。
type Location struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// Point 返回坐标；任一分量缺失时 ok=false。
func (l Location) Point() (GeoPoint, bool) {
	if l.Lat == nil || l.Lng == nil {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: *l.Lat, Lng: *l.Lng}, true
}

// Snapshot 一次活跃配送的客户端快照。orderId/userId/driverId 与取送地址
// 在创建后不再变化；status 单向推进；OTP 一经生成不再重置。
type Snapshot struct {
	OrderID  string `json:"order_id"`
	UserID   string `json:"user_id"`
	DriverID string `json:"driver_id"`

	Status Status `json:"status"`

	Pickup Location `json:"pickup_location"`
	Drop   Location `json:"drop_location"`

	// 取件/送达核验码，4 位数字字符串，仅展示与上报，本端不做校验
	PickupOTP  string `json:"pickup_otp,omitempty"`
	DropoffOTP string `json:"dropoff_otp,omitempty"`

	Vehicle string `json:"vehicle,omitempty"` // 车型展示文案

	// Timestamp 最后一次写入时间，消费方用于新鲜度比较
	Timestamp time.Time `json:"timestamp"`

	// 各状态首次到达时间（到达即定格，不随重复事件更新）
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone 深拷贝快照，避免多个组件共享同一可变对象。
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Pickup = cloneLocation(s.Pickup)
	out.Drop = cloneLocation(s.Drop)
	out.ArrivedAt = cloneTime(s.ArrivedAt)
	out.PickedUpAt = cloneTime(s.PickedUpAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	return &out
}

func cloneLocation(l Location) Location {
	out := l
	if l.Lat != nil {
		v := *l.Lat
		out.Lat = &v
	}
	if l.Lng != nil {
		v := *l.Lng
		out.Lng = &v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
