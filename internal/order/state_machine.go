package order

import (
	"fmt"
	"time"
)

// CanAdvance 判断 from -> to 是否是一个允许的推进。
// 约束是“单调向前”而不是“严格相邻”：实时事件可能乱序或丢失，
// 收到更靠后的状态时直接接受向前跳跃；等于或落后于当前状态的目标一律视为重复。
func CanAdvance(from, to Status) bool {
	if !Known(from) || !Known(to) {
		return false
	}
	return Rank(to) > Rank(from)
}

// Advance 对快照应用状态推进，并维护关键时间字段。
// 返回值表示是否发生了变化：重复事件、已越过的状态都是 no-op（false, nil）；
// 未知状态返回错误。completed 为终态。
func Advance(s *Snapshot, to Status, now time.Time) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("snapshot is nil")
	}
	if !Known(to) {
		return false, fmt.Errorf("unknown order status: %s", to)
	}
	if !CanAdvance(s.Status, to) {
		return false, nil
	}

	s.Status = to
	s.Timestamp = now

	// 向前跳跃时把途经状态的时间一并补上
	if Rank(to) >= Rank(StatusDriverArrived) && s.ArrivedAt == nil {
		t := now
		s.ArrivedAt = &t
	}
	if Rank(to) >= Rank(StatusPickedUp) && s.PickedUpAt == nil {
		t := now
		s.PickedUpAt = &t
	}
	if to == StatusCompleted && s.CompletedAt == nil {
		t := now
		s.CompletedAt = &t
	}
	return true, nil
}
