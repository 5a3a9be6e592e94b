// Package budget tracks USD spend per sender and globally, with atomic
// reservation against daily and monthly caps. It is the single owner of the
// spend ledger; everything else goes through Reserve/Reconcile.
package budget

import (
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Result is the outcome of a budget reservation, in check order.
type Result int

const (
	ReserveOK Result = iota
	SenderDailyExceeded
	SenderMonthlyExceeded
	GlobalDailyExceeded
	GlobalMonthlyExceeded
)

func (r Result) String() string {
	switch r {
	case ReserveOK:
		return "ok"
	case SenderDailyExceeded:
		return "sender_daily_exceeded"
	case SenderMonthlyExceeded:
		return "sender_monthly_exceeded"
	case GlobalDailyExceeded:
		return "global_daily_exceeded"
	case GlobalMonthlyExceeded:
		return "global_monthly_exceeded"
	default:
		return "unknown"
	}
}

// Allowed reports whether the reservation was committed.
func (r Result) Allowed() bool { return r == ReserveOK }

const numShards = 32

// Config holds the tracker's global limits, reset boundary, and persistence
// settings.
type Config struct {
	// Global caps in USD across all senders. Zero means unlimited.
	GlobalDailyUSD   float64
	GlobalMonthlyUSD float64
	// ResetHourUTC is the UTC hour at which daily accumulators clear.
	ResetHourUTC int
	// PersistPath is the ledger snapshot file. Empty disables persistence.
	PersistPath string
	// SaveEvery is the number of mutating operations between automatic
	// snapshots.
	SaveEvery int
}

// Tracker is the spend ledger. Per-sender entries live in mutex-guarded
// shards so distinct senders reserve fully concurrently while each sender's
// check-and-increment is a single exclusive step. Global totals are float64
// bit patterns behind compare-and-swap loops; contention on them is expected
// to be low, so the retry bound is short in practice.
type Tracker struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	shards [numShards]ledgerShard

	globalDaily   atomic.Uint64 // math.Float64bits encoded
	globalMonthly atomic.Uint64

	lastDailyReset   atomic.Int64 // unix seconds
	lastMonthlyReset atomic.Int64

	ops    atomic.Uint64
	saveMu sync.Mutex
}

type ledgerShard struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
}

type ledgerEntry struct {
	daily   float64
	monthly float64
}

// NewTracker creates a tracker. Call Load afterwards to restore a snapshot.
func NewTracker(cfg Config, logger *slog.Logger) *Tracker {
	if cfg.ResetHourUTC < 0 || cfg.ResetHourUTC > 23 {
		cfg.ResetHourUTC = 0
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{cfg: cfg, logger: logger, now: time.Now}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*ledgerEntry)
	}
	nowUnix := t.now().Unix()
	t.lastDailyReset.Store(nowUnix)
	t.lastMonthlyReset.Store(nowUnix)
	return t
}

// Reserve atomically checks and commits an estimated cost against the
// sender's daily and monthly caps and the global caps, in that fixed order;
// the first failing dimension wins and nothing is left reserved. A zero
// limit skips that dimension.
func (t *Tracker) Reserve(senderID string, estimatedCost, dailyLimit, monthlyLimit float64) Result {
	t.maybeReset()
	if estimatedCost < 0 {
		estimatedCost = 0
	}

	sh := t.shardFor(senderID)
	sh.mu.Lock()
	e := sh.entries[senderID]
	if e == nil {
		e = &ledgerEntry{}
		sh.entries[senderID] = e
	}
	if dailyLimit > 0 && e.daily+estimatedCost > dailyLimit {
		sh.mu.Unlock()
		return SenderDailyExceeded
	}
	if monthlyLimit > 0 && e.monthly+estimatedCost > monthlyLimit {
		sh.mu.Unlock()
		return SenderMonthlyExceeded
	}
	e.daily += estimatedCost
	e.monthly += estimatedCost
	sh.mu.Unlock()

	if !addIfUnder(&t.globalDaily, estimatedCost, t.cfg.GlobalDailyUSD) {
		t.creditSender(senderID, estimatedCost)
		return GlobalDailyExceeded
	}
	if !addIfUnder(&t.globalMonthly, estimatedCost, t.cfg.GlobalMonthlyUSD) {
		addClamped(&t.globalDaily, -estimatedCost)
		t.creditSender(senderID, estimatedCost)
		return GlobalMonthlyExceeded
	}

	t.bumpOps()
	return ReserveOK
}

// Reconcile adjusts a prior reservation once the actual cost is known. Every
// accumulator clamps at zero: a large negative delta may under-count, never
// show negative spend.
func (t *Tracker) Reconcile(senderID string, estimatedCost, actualCost float64) {
	t.maybeReset()
	delta := actualCost - estimatedCost
	if delta == 0 {
		return
	}

	sh := t.shardFor(senderID)
	sh.mu.Lock()
	e := sh.entries[senderID]
	if e == nil {
		e = &ledgerEntry{}
		sh.entries[senderID] = e
	}
	e.daily = math.Max(0, e.daily+delta)
	e.monthly = math.Max(0, e.monthly+delta)
	sh.mu.Unlock()

	addClamped(&t.globalDaily, delta)
	addClamped(&t.globalMonthly, delta)
	t.bumpOps()
}

// DailySpend returns the sender's daily accumulator.
func (t *Tracker) DailySpend(senderID string) float64 {
	t.maybeReset()
	sh := t.shardFor(senderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e := sh.entries[senderID]; e != nil {
		return e.daily
	}
	return 0
}

// MonthlySpend returns the sender's monthly accumulator.
func (t *Tracker) MonthlySpend(senderID string) float64 {
	t.maybeReset()
	sh := t.shardFor(senderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e := sh.entries[senderID]; e != nil {
		return e.monthly
	}
	return 0
}

// GlobalDailySpend returns the summed daily spend across all senders.
func (t *Tracker) GlobalDailySpend() float64 {
	t.maybeReset()
	return loadFloat(&t.globalDaily)
}

// GlobalMonthlySpend returns the summed monthly spend across all senders.
func (t *Tracker) GlobalMonthlySpend() float64 {
	t.maybeReset()
	return loadFloat(&t.globalMonthly)
}

// ForceDailyReset clears all daily accumulators immediately.
func (t *Tracker) ForceDailyReset() {
	t.lastDailyReset.Store(t.now().Unix())
	t.clearDaily()
}

// ForceMonthlyReset clears all monthly accumulators immediately, which also
// forces a daily reset.
func (t *Tracker) ForceMonthlyReset() {
	now := t.now().Unix()
	t.lastMonthlyReset.Store(now)
	t.lastDailyReset.Store(now)
	t.clearMonthly()
	t.clearDaily()
}

// maybeReset performs pending daily/monthly rollovers. The compare-and-swap
// on the reset timestamp picks a single winner, so concurrent callers clear
// the accumulators exactly once.
func (t *Tracker) maybeReset() {
	now := t.now().UTC()

	lastMonthly := t.lastMonthlyReset.Load()
	lm := time.Unix(lastMonthly, 0).UTC()
	if now.Year() != lm.Year() || now.Month() != lm.Month() {
		if t.lastMonthlyReset.CompareAndSwap(lastMonthly, now.Unix()) {
			t.lastDailyReset.Store(now.Unix())
			t.clearMonthly()
			t.clearDaily()
			t.logger.Info("monthly budget reset", "at", now)
		}
	}

	lastDaily := t.lastDailyReset.Load()
	if lastDaily < t.dailyBoundary(now).Unix() {
		if t.lastDailyReset.CompareAndSwap(lastDaily, now.Unix()) {
			t.clearDaily()
			t.logger.Info("daily budget reset", "at", now, "boundary_hour_utc", t.cfg.ResetHourUTC)
		}
	}
}

// dailyBoundary returns the most recent daily reset boundary at or before now.
func (t *Tracker) dailyBoundary(now time.Time) time.Time {
	b := time.Date(now.Year(), now.Month(), now.Day(), t.cfg.ResetHourUTC, 0, 0, 0, time.UTC)
	if now.Before(b) {
		b = b.AddDate(0, 0, -1)
	}
	return b
}

func (t *Tracker) clearDaily() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for _, e := range sh.entries {
			e.daily = 0
		}
		sh.mu.Unlock()
	}
	storeFloat(&t.globalDaily, 0)
}

func (t *Tracker) clearMonthly() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for _, e := range sh.entries {
			e.monthly = 0
		}
		sh.mu.Unlock()
	}
	storeFloat(&t.globalMonthly, 0)
}

// creditSender backs out a sender-side increment after a global check failed.
func (t *Tracker) creditSender(senderID string, amount float64) {
	sh := t.shardFor(senderID)
	sh.mu.Lock()
	if e := sh.entries[senderID]; e != nil {
		e.daily = math.Max(0, e.daily-amount)
		e.monthly = math.Max(0, e.monthly-amount)
	}
	sh.mu.Unlock()
}

func (t *Tracker) bumpOps() {
	if t.cfg.PersistPath == "" {
		return
	}
	if t.ops.Add(1)%uint64(t.cfg.SaveEvery) == 0 {
		go func() {
			if err := t.Save(); err != nil {
				t.logger.Warn("periodic ledger save failed", "error", err)
			}
		}()
	}
}

func (t *Tracker) shardFor(senderID string) *ledgerShard {
	h := fnv.New32a()
	h.Write([]byte(senderID))
	return &t.shards[h.Sum32()%numShards]
}

// Float64 totals cannot use a hardware atomic add, so the globals are bit
// patterns mutated through CAS loops.

func loadFloat(a *atomic.Uint64) float64 {
	return math.Float64frombits(a.Load())
}

func storeFloat(a *atomic.Uint64, v float64) {
	a.Store(math.Float64bits(v))
}

// addIfUnder adds delta unless the result would exceed limit (limit > 0
// means enforced).
func addIfUnder(a *atomic.Uint64, delta, limit float64) bool {
	for {
		old := a.Load()
		cur := math.Float64frombits(old)
		if limit > 0 && cur+delta > limit {
			return false
		}
		if a.CompareAndSwap(old, math.Float64bits(cur+delta)) {
			return true
		}
	}
}

// addClamped adds delta, clamping the result at zero.
func addClamped(a *atomic.Uint64, delta float64) {
	for {
		old := a.Load()
		next := math.Max(0, math.Float64frombits(old)+delta)
		if a.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}
