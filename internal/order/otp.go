package order

import (
	"fmt"
	"math/rand"
)

const (
	otpMin = 1000
	otpMax = 9999
)

// GenerateOTP 生成 4 位数字核验码（1000-9999，均匀分布）。
// 这是客户与司机当面核对的口令，不是安全边界，因此使用普通伪随机源即可。
func GenerateOTP() string {
	return fmt.Sprintf("%d", otpMin+rand.Intn(otpMax-otpMin+1))
}

// EnsurePickupOTP 在司机确认接单时生成取件核验码。
// 已存在时跳过（set-once），返回值表示本次是否新生成。
func EnsurePickupOTP(s *Snapshot) (string, bool) {
	if s == nil {
		return "", false
	}
	if s.PickupOTP != "" {
		return s.PickupOTP, false
	}
	s.PickupOTP = GenerateOTP()
	return s.PickupOTP, true
}

// EnsureDropoffOTP 在进入 picked_up 时生成送达核验码。
// 状态未到 picked_up 时不生成（送达码在取件前不允许存在）；已存在时跳过。
func EnsureDropoffOTP(s *Snapshot) (string, bool) {
	if s == nil {
		return "", false
	}
	if Rank(s.Status) < Rank(StatusPickedUp) {
		return "", false
	}
	if s.DropoffOTP != "" {
		return s.DropoffOTP, false
	}
	s.DropoffOTP = GenerateOTP()
	return s.DropoffOTP, true
}
