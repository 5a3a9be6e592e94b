package ratelimit

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

// Config controls the limiter's windows and memory bound.
type Config struct {
	// Window is the sliding window length for per-sender limits and the
	// fixed window length for the global aggregate limit.
	Window time.Duration
	// GlobalLimit caps total admissions per window across all senders.
	// Zero disables the global check. It exists to defeat identity
	// rotation: many fresh sender ids cannot evade it.
	GlobalLimit int
	// MaxTrackedSenders bounds how many sender windows are kept in memory;
	// the least-recently-touched sender is evicted beyond that.
	MaxTrackedSenders int
}

// Limiter admits or rejects requests per sender (sliding window) and in
// aggregate (global fixed window). Sender state is sharded so distinct
// senders proceed concurrently; each check-and-admit is atomic per sender.
type Limiter struct {
	window      time.Duration
	globalLimit int
	now         func() time.Time

	gmu    sync.Mutex
	gcount int
	gstart time.Time

	shards []*shard
}

type shard struct {
	mu      sync.Mutex
	cap     int
	senders map[string]*senderWindow
	lru     *list.List // front = most recently touched
}

type senderWindow struct {
	id    string
	times []time.Time
	elem  *list.Element
}

// NewLimiter creates a limiter. Zero-value config fields get safe defaults
// (one minute window, 10000 tracked senders, no global limit).
func NewLimiter(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxTrackedSenders <= 0 {
		cfg.MaxTrackedSenders = 10_000
	}

	// Small sender universes run on a single shard; the tracked-sender cap
	// is exact either way because each shard enforces its own share.
	nshards := 16
	if cfg.MaxTrackedSenders < 256 {
		nshards = 1
	}
	perShard := cfg.MaxTrackedSenders / nshards
	if perShard < 1 {
		perShard = 1
	}

	l := &Limiter{
		window:      cfg.Window,
		globalLimit: cfg.GlobalLimit,
		now:         time.Now,
		shards:      make([]*shard, nshards),
	}
	for i := range l.shards {
		l.shards[i] = &shard{
			cap:     perShard,
			senders: make(map[string]*senderWindow),
			lru:     list.New(),
		}
	}
	return l
}

// Check reports whether a request from senderID is admitted under its
// per-sender limit and the global aggregate limit. limit is requests per
// window; zero means unrestricted for that sender. The global window is
// checked first so a globally exhausted limiter rejects before any
// per-sender work.
func (l *Limiter) Check(senderID string, limit int) bool {
	ok, _ := l.CheckScope(senderID, limit)
	return ok
}

// CheckScope is Check plus the scope that rejected: "global", "sender", or
// empty on admission.
func (l *Limiter) CheckScope(senderID string, limit int) (bool, string) {
	now := l.now()

	if !l.admitGlobal(now) {
		return false, "global"
	}
	if limit <= 0 {
		return true, ""
	}

	sh := l.shardFor(senderID)
	sh.mu.Lock()

	w := sh.senders[senderID]
	if w == nil {
		w = &senderWindow{id: senderID}
		sh.senders[senderID] = w
		w.elem = sh.lru.PushFront(w)
		sh.evictOver()
	} else {
		sh.lru.MoveToFront(w.elem)
	}

	cutoff := now.Add(-l.window)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	w.times = w.times[i:]

	if len(w.times) >= limit {
		sh.mu.Unlock()
		l.releaseGlobal()
		return false, "sender"
	}
	w.times = append(w.times, now)
	sh.mu.Unlock()
	return true, ""
}

// admitGlobal optimistically counts an admission in the global fixed window.
// A later per-sender rejection calls releaseGlobal to undo it.
func (l *Limiter) admitGlobal(now time.Time) bool {
	if l.globalLimit <= 0 {
		return true
	}
	l.gmu.Lock()
	defer l.gmu.Unlock()
	if now.Sub(l.gstart) >= l.window {
		l.gstart = now
		l.gcount = 0
	}
	if l.gcount >= l.globalLimit {
		return false
	}
	l.gcount++
	return true
}

func (l *Limiter) releaseGlobal() {
	if l.globalLimit <= 0 {
		return
	}
	l.gmu.Lock()
	if l.gcount > 0 {
		l.gcount--
	}
	l.gmu.Unlock()
}

// TrackedSenders returns the number of sender windows currently held.
func (l *Limiter) TrackedSenders() int {
	total := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		total += len(sh.senders)
		sh.mu.Unlock()
	}
	return total
}

func (l *Limiter) shardFor(senderID string) *shard {
	if len(l.shards) == 1 {
		return l.shards[0]
	}
	h := fnv.New32a()
	h.Write([]byte(senderID))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// evictOver drops least-recently-touched senders until the shard is within
// its cap. Must be called with the shard lock held.
func (sh *shard) evictOver() {
	for len(sh.senders) > sh.cap {
		back := sh.lru.Back()
		if back == nil {
			return
		}
		victim := back.Value.(*senderWindow)
		sh.lru.Remove(back)
		delete(sh.senders, victim.id)
	}
}
