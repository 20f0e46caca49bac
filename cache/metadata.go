package cache

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// metadataState is the persisted shape of cache_metadata.json.
type metadataState struct {
	// HitCounts maps entry key to how many times it was served.
	HitCounts map[string]int `json:"hit_counts"`
	// ServerCache accumulates provider-side prompt cache token counts
	// per day, keyed by date (2006-01-02).
	ServerCache map[string]ServerCacheDay `json:"server_cache"`
}

// ServerCacheDay is one day's worth of server-side prompt cache traffic.
type ServerCacheDay struct {
	HitTokens  int `json:"hit_tokens"`
	MissTokens int `json:"miss_tokens"`
}

// metadata tracks hit counts and server-side cache savings, persisted as
// a single JSON file next to the entries. Load and save errors are logged
// and swallowed; metadata is bookkeeping, never a failure source.
type metadata struct {
	mu     sync.Mutex
	path   string
	state  metadataState
	logger zerolog.Logger
}

func newMetadata(path string, logger zerolog.Logger) *metadata {
	m := &metadata{
		path:   path,
		logger: logger,
		state: metadataState{
			HitCounts:   map[string]int{},
			ServerCache: map[string]ServerCacheDay{},
		},
	}
	m.load()
	return m
}

func (m *metadata) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return
	}
	var state metadataState
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn().Str("path", m.path).Err(err).Msg("Cache metadata corrupt, starting fresh")
		return
	}
	if state.HitCounts == nil {
		state.HitCounts = map[string]int{}
	}
	if state.ServerCache == nil {
		state.ServerCache = map[string]ServerCacheDay{}
	}
	m.state = state
}

// save persists the current state. Callers must hold mu.
func (m *metadata) save() {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		m.logger.Warn().Str("path", m.path).Err(err).Msg("Failed to write cache metadata")
	}
}

// RecordHit increments the served count for key.
func (m *metadata) RecordHit(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.HitCounts[key]++
	m.save()
}

// HitCount returns the served count for key.
func (m *metadata) HitCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.HitCounts[key]
}

// RecordServerCacheUsage adds provider-reported prompt cache token counts
// to today's bucket.
func (m *metadata) RecordServerCacheUsage(hitTokens, missTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := time.Now().Format("2006-01-02")
	bucket := m.state.ServerCache[day]
	bucket.HitTokens += hitTokens
	bucket.MissTokens += missTokens
	m.state.ServerCache[day] = bucket
	m.save()
}

// ServerCacheSavings returns the per-day server-side cache token counts.
func (m *metadata) ServerCacheSavings() map[string]ServerCacheDay {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ServerCacheDay, len(m.state.ServerCache))
	for day, bucket := range m.state.ServerCache {
		out[day] = bucket
	}
	return out
}
