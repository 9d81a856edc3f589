package cache

import (
	"fmt"

	"fintrack/internal/log"

	"github.com/robfig/cron/v3"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// DeleteFunc removes every key matching the predicate
	DeleteFunc(match func(key string) bool) int

	// Size returns the current number of items in the cache
	Size() int
}

var _ Cache[int] = (*LRUCache[int])(nil)

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches []Cleaner
	cron   *cron.Cron
	logger *log.Logger
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a new cache manager
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Manager{
		caches: make([]Cleaner, 0),
		cron:   cron.New(),
		logger: logger.WithComponent(log.ComponentCache),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup schedules periodic cleanup of all registered caches. spec is
// a standard cron expression or a descriptor such as "@every 5m".
func (m *Manager) StartCleanup(spec string) error {
	if _, err := m.cron.AddFunc(spec, m.CleanAll); err != nil {
		return fmt.Errorf("schedule cache cleanup %q: %w", spec, err)
	}
	m.cron.Start()
	return nil
}

// CleanAll drops expired entries from every registered cache.
func (m *Manager) CleanAll() {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	if total > 0 {
		m.logger.Debug("Cache cleanup completed", "removed", total)
	}
}

// Stop gracefully stops the cleanup schedule, waiting for a running pass.
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()
}
