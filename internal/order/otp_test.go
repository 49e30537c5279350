package order

import (
	"strconv"
	"testing"
)

func TestGenerateOTPRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		otp := GenerateOTP()
		if len(otp) != 4 {
			t.Fatalf("expected 4-digit otp, got %q", otp)
		}
		n, err := strconv.Atoi(otp)
		if err != nil {
			t.Fatalf("otp not numeric: %q", otp)
		}
		if n < 1000 || n > 9999 {
			t.Fatalf("otp out of range: %d", n)
		}
	}
}

func TestEnsurePickupOTPSetOnce(t *testing.T) {
	s := &Snapshot{Status: StatusDriverAssigned}

	first, generated := EnsurePickupOTP(s)
	if !generated || first == "" {
		t.Fatalf("expected pickup otp to be generated")
	}

	second, generated := EnsurePickupOTP(s)
	if generated {
		t.Fatalf("expected second call to be a no-op")
	}
	if second != first {
		t.Fatalf("pickup otp changed: %s -> %s", first, second)
	}
}

func TestEnsureDropoffOTPRequiresPickedUp(t *testing.T) {
	s := &Snapshot{Status: StatusDriverAssigned}

	// 取件前不允许存在送达码
	if otp, generated := EnsureDropoffOTP(s); generated || otp != "" {
		t.Fatalf("expected no dropoff otp before picked_up, got %q", otp)
	}

	s.Status = StatusPickedUp
	first, generated := EnsureDropoffOTP(s)
	if !generated || first == "" {
		t.Fatalf("expected dropoff otp at picked_up")
	}

	second, generated := EnsureDropoffOTP(s)
	if generated || second != first {
		t.Fatalf("expected dropoff otp set-once, got %s -> %s", first, second)
	}
}
