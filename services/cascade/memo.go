package cascade

import (
	"strings"
	"sync"
	"time"

	"magnetar/config"
)

// ExhaustionMemo is a short-TTL map recording "source S had zero results for
// identifier I". It is consulted before each probe to skip known-empty
// sources, and is always advisory: callers deliberately bypass base-level
// entries for a specific season/episode, because per-episode availability is
// independent of a series' history.
type ExhaustionMemo struct {
	remoteTTL time.Duration
	localTTL  time.Duration

	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
}

func NewExhaustionMemo(cfg config.CacheSettings) *ExhaustionMemo {
	return &ExhaustionMemo{
		remoteTTL: time.Duration(cfg.RemoteExhaustSec) * time.Second,
		localTTL:  time.Duration(cfg.LocalExhaustSec) * time.Second,
		entries:   make(map[string]time.Time),
	}
}

func memoKey(identifier, source string) string {
	return identifier + "|" + source
}

// MarkLocal records a local-store miss. Local stores only change on append
// or reload, so their entries live longer.
func (m *ExhaustionMemo) MarkLocal(identifier, source string) {
	m.mark(identifier, source, m.localTTL)
}

// MarkRemote records a remote-source miss with the short TTL that lets new
// episodes surface quickly after airing.
func (m *ExhaustionMemo) MarkRemote(identifier, source string) {
	m.mark(identifier, source, m.remoteTTL)
}

func (m *ExhaustionMemo) mark(identifier, source string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoKey(identifier, source)] = time.Now().Add(ttl)
}

// IsExhausted reports whether the source is still marked empty for this
// identifier. Expired entries are pruned on sight.
func (m *ExhaustionMemo) IsExhausted(identifier, source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoKey(identifier, source)
	expiry, ok := m.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(m.entries, key)
		return false
	}
	return true
}

// Clear drops every entry for an identifier on one source, including
// episode-suffixed variants. Called when a source that was marked empty
// starts producing results again.
func (m *ExhaustionMemo) Clear(identifier, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memoKey(identifier, source))
	prefix := identifier + ":"
	suffix := "|" + source
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) {
			delete(m.entries, key)
		}
	}
}

// Len reports the live entry count.
func (m *ExhaustionMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
