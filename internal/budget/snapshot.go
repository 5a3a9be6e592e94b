package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// snapshot is the on-disk form of the ledger. It round-trips exactly through
// Save and Load.
type snapshot struct {
	Senders          map[string]senderSpend `json:"senders"`
	GlobalDailyUSD   float64                `json:"global_daily_usd"`
	GlobalMonthlyUSD float64                `json:"global_monthly_usd"`
	LastDailyReset   int64                  `json:"last_daily_reset"`
	LastMonthlyReset int64                  `json:"last_monthly_reset"`
}

type senderSpend struct {
	DailyUSD   float64 `json:"daily_usd"`
	MonthlyUSD float64 `json:"monthly_usd"`
}

// Save writes the full ledger to the configured path, atomically
// (write-temp-then-rename) and owner-only. A no-op when persistence is
// disabled.
func (t *Tracker) Save() error {
	if t.cfg.PersistPath == "" {
		return nil
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	snap := snapshot{
		Senders:          make(map[string]senderSpend),
		GlobalDailyUSD:   loadFloat(&t.globalDaily),
		GlobalMonthlyUSD: loadFloat(&t.globalMonthly),
		LastDailyReset:   t.lastDailyReset.Load(),
		LastMonthlyReset: t.lastMonthlyReset.Load(),
	}
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		for id, e := range sh.entries {
			snap.Senders[id] = senderSpend{DailyUSD: e.daily, MonthlyUSD: e.monthly}
		}
		sh.mu.Unlock()
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("marshal ledger snapshot: %w", err)
	}

	dir := filepath.Dir(t.cfg.PersistPath)
	tmp, err := os.CreateTemp(dir, filepath.Base(t.cfg.PersistPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, t.cfg.PersistPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Load restores a snapshot from the configured path. A missing or corrupt
// snapshot starts the ledger fresh: that direction at most under-counts
// recent spend, it never over-restricts.
func (t *Tracker) Load() error {
	if t.cfg.PersistPath == "" {
		return nil
	}
	data, err := os.ReadFile(t.cfg.PersistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		t.logger.Warn("ledger snapshot unreadable, starting fresh", "path", t.cfg.PersistPath, "error", err)
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.logger.Warn("ledger snapshot corrupt, starting fresh", "path", t.cfg.PersistPath, "error", err)
		return nil
	}

	for id, s := range snap.Senders {
		sh := t.shardFor(id)
		sh.mu.Lock()
		sh.entries[id] = &ledgerEntry{daily: s.DailyUSD, monthly: s.MonthlyUSD}
		sh.mu.Unlock()
	}
	storeFloat(&t.globalDaily, snap.GlobalDailyUSD)
	storeFloat(&t.globalMonthly, snap.GlobalMonthlyUSD)
	if snap.LastDailyReset > 0 {
		t.lastDailyReset.Store(snap.LastDailyReset)
	}
	if snap.LastMonthlyReset > 0 {
		t.lastMonthlyReset.Store(snap.LastMonthlyReset)
	}
	return nil
}
