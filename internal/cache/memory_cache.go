package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"posledger/backend/internal/domain"
)

const defaultMemoryEntries = 256

type memoryEntry struct {
	report    domain.MonthlyReport
	storedAt  time.Time
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryReportCache is the single-process fallback when Redis is not configured.
// Keys change with every ledger commit, so expired entries are swept on Set
// and the map never holds more than maxEntries reports.
type MemoryReportCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: defaultMemoryEntries,
		now:        time.Now,
	}
}

func (c *MemoryReportCache) Get(_ context.Context, key string) (*domain.MonthlyReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.expired(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	report := cloneReport(entry.report)
	return &report, true, nil
}

func (c *MemoryReportCache) Set(_ context.Context, key string, value *domain.MonthlyReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	entry := memoryEntry{report: cloneReport(*value), storedAt: now}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *MemoryReportCache) sweep(now time.Time) {
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryReportCache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, entry := range c.entries {
		if !found || entry.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, entry.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

func cloneReport(r domain.MonthlyReport) domain.MonthlyReport {
	r.PerDay = slices.Clone(r.PerDay)
	return r
}
