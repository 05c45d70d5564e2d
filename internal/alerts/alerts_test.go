package alerts

import (
	"testing"
	"time"
)

func TestThrottleFirstAlertAlwaysFires(t *testing.T) {
	if !Throttle("stale_heartbeat", "", time.Time{}, time.Minute, time.Now()) {
		t.Fatal("expected first alert to fire")
	}
}

func TestThrottleReasonChangeFiresImmediately(t *testing.T) {
	now := time.Now()
	last := now.Add(-time.Second)
	if !Throttle("crash_loop", "stale_heartbeat", last, time.Hour, now) {
		t.Fatal("expected reason change to bypass the interval")
	}
}

func TestThrottleSameReasonWaitsForInterval(t *testing.T) {
	now := time.Now()
	last := now.Add(-30 * time.Second)
	if Throttle("stale_heartbeat", "stale_heartbeat", last, time.Minute, now) {
		t.Fatal("expected same-reason repeat to be throttled before the interval elapses")
	}
	if !Throttle("stale_heartbeat", "stale_heartbeat", now.Add(-90*time.Second), time.Minute, now) {
		t.Fatal("expected same-reason repeat to fire once the interval elapses")
	}
}

func TestSendWithoutWebhookIsNoop(t *testing.T) {
	c := &Client{}
	c.Send("slot down", "demo-slot", "stale_heartbeat")
}
