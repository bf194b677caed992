package engine

import (
	"sync"
	"time"
)

type memoryEntry struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers which engine last rendered a host's homepage,
// so later lookups for the same host skip the escalation race. A nil
// *DomainMemory remembers nothing.
type DomainMemory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewDomainMemory creates a DomainMemory whose entries live for ttl and
// starts a goroutine that prunes expired entries every interval.
func NewDomainMemory(ttl, interval time.Duration) *DomainMemory {
	dm := &DomainMemory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go dm.pruneLoop(interval)
	}
	return dm
}

// Get returns the remembered engine for host, or "" if unknown or expired.
func (dm *DomainMemory) Get(host string) string {
	if dm == nil {
		return ""
	}
	dm.mu.RLock()
	e, ok := dm.entries[host]
	dm.mu.RUnlock()
	if !ok || dm.now().After(e.expiresAt) {
		return ""
	}
	return e.engineName
}

// Set records the engine that succeeded for host.
func (dm *DomainMemory) Set(host, engineName string) {
	if dm == nil {
		return
	}
	dm.mu.Lock()
	dm.entries[host] = memoryEntry{engineName: engineName, expiresAt: dm.now().Add(dm.ttl)}
	dm.mu.Unlock()
}

// Forget drops host, typically after its remembered engine failed.
func (dm *DomainMemory) Forget(host string) {
	if dm == nil {
		return
	}
	dm.mu.Lock()
	delete(dm.entries, host)
	dm.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (dm *DomainMemory) Len() int {
	if dm == nil {
		return 0
	}
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return len(dm.entries)
}

// Stop terminates the prune goroutine. It is safe to call more than once.
func (dm *DomainMemory) Stop() {
	if dm == nil {
		return
	}
	dm.stopOnce.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) prune() {
	now := dm.now()
	dm.mu.Lock()
	for host, e := range dm.entries {
		if now.After(e.expiresAt) {
			delete(dm.entries, host)
		}
	}
	dm.mu.Unlock()
}

func (dm *DomainMemory) pruneLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			dm.prune()
		}
	}
}
