package dmxp

import (
	"testing"
	"time"
)

func TestBackoff_SpinSucceedsImmediately(t *testing.T) {
	b := newBackoff(DefaultBackoffConfig())
	calls := 0
	ok := b.spin(func() bool {
		calls++
		return true
	})
	if !ok {
		t.Fatal("expected spin to report success")
	}
	if calls != 1 {
		t.Fatalf("condition called %d times, want 1", calls)
	}
}

func TestBackoff_RewardRaisesLimitTowardMax(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.SpinLimit = cfg.MinSpin
	b := newBackoff(cfg)

	b.reward()
	if b.limit <= cfg.MinSpin {
		t.Fatalf("limit = %d, expected increase past MinSpin %d", b.limit, cfg.MinSpin)
	}
}

func TestBackoff_PunishLowersLimitTowardMin(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.SpinLimit = cfg.MaxSpin
	b := newBackoff(cfg)

	b.punish()
	if b.limit >= cfg.MaxSpin {
		t.Fatalf("limit = %d, expected decrease below MaxSpin %d", b.limit, cfg.MaxSpin)
	}
}

func TestBackoff_WaitUntilTimesOutWhenConditionNeverTrue(t *testing.T) {
	cfg := DefaultBackoffConfig()
	cfg.SpinLimit = 10
	cfg.SleepStep = time.Millisecond
	b := newBackoff(cfg)

	ok := b.waitUntil(func() bool { return false }, time.Now().Add(20*time.Millisecond))
	if ok {
		t.Fatal("expected waitUntil to time out")
	}
}
