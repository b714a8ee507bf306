package match

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/models"
)

// DefaultCacheTTL bounds how long a merged record set is reused before the
// upstream is consulted again.
const DefaultCacheTTL = 5 * time.Minute

// SessionCache memoizes the merged record set of one load window. It is a
// single slot: writes happen only at the end of a completed load and are an
// atomic replace, so a concurrent reader sees either the old entry or the
// fully-new one.
type SessionCache struct {
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	entry *cacheEntry
}

type cacheEntry struct {
	records    []models.ProcurementRecord
	capturedAt time.Time
	dateFrom   string
	dateTo     string
}

// CacheInfo is cache metadata for debugging and telemetry display.
type CacheInfo struct {
	RecordCount int           `json:"record_count"`
	Age         time.Duration `json:"age_ms"`
	Remaining   time.Duration `json:"remaining_ms"`
	Expired     bool          `json:"expired"`
	DateFrom    string        `json:"date_from"`
	DateTo      string        `json:"date_to"`
}

func NewSessionCache(ttl time.Duration, logger *zap.Logger) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SessionCache{ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the cached record set, or nil on a miss: no entry, entry past
// TTL (the slot is cleared), or a date range that does not exactly match.
func (c *SessionCache) Get(dateFrom, dateTo string) []models.ProcurementRecord {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil {
		return nil
	}
	if c.now().Sub(entry.capturedAt) > c.ttl {
		c.logger.Debug("session cache expired, clearing")
		c.Invalidate()
		return nil
	}
	if entry.dateFrom != dateFrom || entry.dateTo != dateTo {
		c.logger.Debug("session cache range mismatch",
			zap.String("cached_from", entry.dateFrom),
			zap.String("cached_to", entry.dateTo),
		)
		return nil
	}
	return entry.records
}

func (c *SessionCache) Put(records []models.ProcurementRecord, dateFrom, dateTo string) {
	c.mu.Lock()
	c.entry = &cacheEntry{
		records:    records,
		capturedAt: c.now(),
		dateFrom:   dateFrom,
		dateTo:     dateTo,
	}
	c.mu.Unlock()

	c.logger.Debug("session cache updated", zap.Int("records", len(records)))
}

func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// Info reports cache metadata, or nil when the slot is empty.
func (c *SessionCache) Info() *CacheInfo {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil {
		return nil
	}
	age := c.now().Sub(entry.capturedAt)
	return &CacheInfo{
		RecordCount: len(entry.records),
		Age:         age,
		Remaining:   c.ttl - age,
		Expired:     age > c.ttl,
		DateFrom:    entry.dateFrom,
		DateTo:      entry.dateTo,
	}
}
