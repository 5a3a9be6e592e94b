package budget

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

func newTestTracker(cfg Config) *Tracker {
	return NewTracker(cfg, nil)
}

func TestReserve_UnderLimit(t *testing.T) {
	tr := newTestTracker(Config{})

	if res := tr.Reserve("s1", 1.0, 5.0, 50.0); res != ReserveOK {
		t.Fatalf("expected ok, got %s", res)
	}
	if got := tr.DailySpend("s1"); got != 1.0 {
		t.Errorf("expected daily spend 1.0, got %v", got)
	}
	if got := tr.MonthlySpend("s1"); got != 1.0 {
		t.Errorf("expected monthly spend 1.0, got %v", got)
	}
}

func TestReserve_DailyExceeded(t *testing.T) {
	tr := newTestTracker(Config{})

	tr.Reserve("s1", 4.0, 5.0, 50.0)
	if res := tr.Reserve("s1", 2.0, 5.0, 50.0); res != SenderDailyExceeded {
		t.Fatalf("expected sender_daily_exceeded, got %s", res)
	}
	// Refused reservation must leave nothing behind.
	if got := tr.DailySpend("s1"); got != 4.0 {
		t.Errorf("refused reserve leaked spend: %v", got)
	}
}

func TestReserve_MonthlyExceeded(t *testing.T) {
	tr := newTestTracker(Config{})

	tr.Reserve("s1", 4.0, 0, 5.0)
	if res := tr.Reserve("s1", 2.0, 0, 5.0); res != SenderMonthlyExceeded {
		t.Fatalf("expected sender_monthly_exceeded, got %s", res)
	}
}

func TestReserve_CheckOrderDailyFirst(t *testing.T) {
	tr := newTestTracker(Config{})

	tr.Reserve("s1", 4.0, 5.0, 4.5)
	// Both dimensions would fail; daily is checked first and wins.
	if res := tr.Reserve("s1", 2.0, 5.0, 4.5); res != SenderDailyExceeded {
		t.Fatalf("expected daily to fail first, got %s", res)
	}
}

func TestReserve_ZeroLimitIsUnlimited(t *testing.T) {
	tr := newTestTracker(Config{})

	for i := 0; i < 100; i++ {
		if res := tr.Reserve("s1", 10.0, 0, 0); res != ReserveOK {
			t.Fatalf("zero limits should never refuse, got %s", res)
		}
	}
}

func TestReserve_GlobalDailyRollsBackSender(t *testing.T) {
	tr := newTestTracker(Config{GlobalDailyUSD: 5.0})

	tr.Reserve("other", 4.0, 0, 0)
	if res := tr.Reserve("s1", 2.0, 0, 0); res != GlobalDailyExceeded {
		t.Fatalf("expected global_daily_exceeded, got %s", res)
	}
	if got := tr.DailySpend("s1"); got != 0 {
		t.Errorf("sender spend should be rolled back, got %v", got)
	}
	if got := tr.GlobalDailySpend(); got != 4.0 {
		t.Errorf("global spend should be unchanged, got %v", got)
	}
}

func TestReserve_GlobalMonthlyRollsBackAll(t *testing.T) {
	tr := newTestTracker(Config{GlobalMonthlyUSD: 5.0})

	tr.Reserve("other", 4.0, 0, 0)
	if res := tr.Reserve("s1", 2.0, 0, 0); res != GlobalMonthlyExceeded {
		t.Fatalf("expected global_monthly_exceeded, got %s", res)
	}
	if got := tr.DailySpend("s1"); got != 0 {
		t.Errorf("sender daily should be rolled back, got %v", got)
	}
	if got := tr.GlobalDailySpend(); got != 4.0 {
		t.Errorf("global daily should be rolled back to prior value, got %v", got)
	}
}

func TestReconcile_AdjustsDown(t *testing.T) {
	tr := newTestTracker(Config{})

	tr.Reserve("s1", 2.0, 0, 0)
	tr.Reconcile("s1", 2.0, 0.5)

	if got := tr.DailySpend("s1"); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 0.5 after reconcile, got %v", got)
	}
	if got := tr.GlobalDailySpend(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected global 0.5 after reconcile, got %v", got)
	}
}

func TestReconcile_AdjustsUp(t *testing.T) {
	tr := newTestTracker(Config{})

	tr.Reserve("s1", 1.0, 0, 0)
	tr.Reconcile("s1", 1.0, 3.0)

	if got := tr.MonthlySpend("s1"); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("expected 3.0 after reconcile, got %v", got)
	}
}

func TestReconcile_ClampsAtZero(t *testing.T) {
	tr := newTestTracker(Config{})

	tr.Reserve("s1", 1.0, 0, 0)
	// Reconciling more than was ever reserved cannot drive spend negative.
	tr.Reconcile("s1", 5.0, 0)

	if got := tr.DailySpend("s1"); got != 0 {
		t.Errorf("spend must clamp at zero, got %v", got)
	}
	if got := tr.GlobalDailySpend(); got != 0 {
		t.Errorf("global spend must clamp at zero, got %v", got)
	}
}

func TestReconcile_UnknownSenderRecordsSpend(t *testing.T) {
	tr := newTestTracker(Config{})

	// Unreserved outcome: estimate zero, actual positive.
	tr.Reconcile("s1", 0, 1.25)
	if got := tr.DailySpend("s1"); math.Abs(got-1.25) > 1e-9 {
		t.Errorf("unreserved spend should be recorded, got %v", got)
	}
}

func TestReserve_ConcurrentAgainstTightCap(t *testing.T) {
	tr := newTestTracker(Config{GlobalDailyUSD: 10.0})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if tr.Reserve(fmt.Sprintf("s%d", w), 1.0, 0, 0) == ReserveOK {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()

	if admitted != 10 {
		t.Errorf("expected exactly 10 admissions under a $10 cap, got %d", admitted)
	}
	if got := tr.GlobalDailySpend(); got > 10.0 {
		t.Errorf("global spend %v exceeds cap", got)
	}
}

func TestDailyReset_AtBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(Config{})
	tr.now = func() time.Time { return now }
	tr.lastDailyReset.Store(now.Unix())
	tr.lastMonthlyReset.Store(now.Unix())

	tr.Reserve("s1", 2.0, 5.0, 0)

	// Next day, past the midnight UTC boundary.
	now = time.Date(2026, 3, 11, 0, 30, 0, 0, time.UTC)
	if got := tr.DailySpend("s1"); got != 0 {
		t.Errorf("daily spend should reset at the boundary, got %v", got)
	}
	if got := tr.MonthlySpend("s1"); got != 2.0 {
		t.Errorf("monthly spend should survive a daily reset, got %v", got)
	}
}

func TestDailyReset_CustomHour(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	tr := newTestTracker(Config{ResetHourUTC: 4})
	tr.now = func() time.Time { return now }
	tr.lastDailyReset.Store(now.Unix())
	tr.lastMonthlyReset.Store(now.Unix())

	tr.Reserve("s1", 2.0, 0, 0)

	// 03:59 same day: boundary (04:00) not yet crossed.
	now = time.Date(2026, 3, 10, 3, 59, 0, 0, time.UTC)
	if got := tr.DailySpend("s1"); got != 2.0 {
		t.Errorf("spend should survive before the reset hour, got %v", got)
	}

	now = time.Date(2026, 3, 10, 4, 1, 0, 0, time.UTC)
	if got := tr.DailySpend("s1"); got != 0 {
		t.Errorf("spend should clear after the reset hour, got %v", got)
	}
}

func TestMonthlyReset_ClearsBoth(t *testing.T) {
	now := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	tr := newTestTracker(Config{})
	tr.now = func() time.Time { return now }
	tr.lastDailyReset.Store(now.Unix())
	tr.lastMonthlyReset.Store(now.Unix())

	tr.Reserve("s1", 3.0, 0, 0)

	now = time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC)
	if got := tr.MonthlySpend("s1"); got != 0 {
		t.Errorf("monthly spend should reset on month change, got %v", got)
	}
	if got := tr.DailySpend("s1"); got != 0 {
		t.Errorf("monthly reset should also clear daily, got %v", got)
	}
}

func TestForceResets(t *testing.T) {
	tr := newTestTracker(Config{})
	tr.Reserve("s1", 3.0, 0, 0)

	tr.ForceDailyReset()
	if got := tr.DailySpend("s1"); got != 0 {
		t.Errorf("forced daily reset should clear daily, got %v", got)
	}
	if got := tr.MonthlySpend("s1"); got != 3.0 {
		t.Errorf("forced daily reset should keep monthly, got %v", got)
	}

	tr.ForceMonthlyReset()
	if got := tr.MonthlySpend("s1"); got != 0 {
		t.Errorf("forced monthly reset should clear monthly, got %v", got)
	}
}

func TestResultStrings(t *testing.T) {
	cases := map[Result]string{
		ReserveOK:             "ok",
		SenderDailyExceeded:   "sender_daily_exceeded",
		SenderMonthlyExceeded: "sender_monthly_exceeded",
		GlobalDailyExceeded:   "global_daily_exceeded",
		GlobalMonthlyExceeded: "global_monthly_exceeded",
	}
	for res, want := range cases {
		if got := res.String(); got != want {
			t.Errorf("Result(%d).String() = %q, want %q", res, got, want)
		}
	}
	if !ReserveOK.Allowed() {
		t.Error("ReserveOK should be allowed")
	}
	if SenderDailyExceeded.Allowed() {
		t.Error("refusals should not be allowed")
	}
}
