package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/wanderhaven/llmcore/llm"
)

// Bucket summarizes one slice of the cache.
type Bucket struct {
	EntryCount int       `json:"entry_count"`
	TotalSize  int64     `json:"total_size"`
	Oldest     time.Time `json:"oldest,omitempty"`
	Newest     time.Time `json:"newest,omitempty"`
}

// Stats describes the cache contents, in total and per provider. Entries
// whose stored model matches neither known provider land in the
// "unknown" bucket.
type Stats struct {
	Total       Bucket                    `json:"total"`
	Providers   map[string]Bucket         `json:"providers"`
	ServerCache map[string]ServerCacheDay `json:"server_cache,omitempty"`
}

// Stats scans the cache directory and summarizes it. Entries that cannot
// be read or decoded still count toward the totals by size; they are
// classified as unknown.
func (c *Cache) Stats() Stats {
	stats := Stats{
		Providers: map[string]Bucket{
			llm.ProviderAnthropic: {},
			llm.ProviderDeepSeek:  {},
			"unknown":             {},
		},
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read cache directory")
		return stats
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == metadataFile {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		provider := c.classify(filepath.Join(c.dir, entry.Name()))
		stats.Total = accumulate(stats.Total, info)
		stats.Providers[provider] = accumulate(stats.Providers[provider], info)
	}

	stats.ServerCache = c.meta.ServerCacheSavings()
	return stats
}

// classify maps an entry to a provider bucket by the model name stored
// inside it.
func (c *Cache) classify(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	var resp llm.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return "unknown"
	}
	return ProviderForModel(resp.Model)
}

// ProviderForModel buckets a model name by provider using the naming
// conventions each provider follows.
func ProviderForModel(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.Contains(model, "claude"):
		return llm.ProviderAnthropic
	case strings.Contains(model, "deepseek"):
		return llm.ProviderDeepSeek
	default:
		return "unknown"
	}
}

func accumulate(b Bucket, info os.FileInfo) Bucket {
	b.EntryCount++
	b.TotalSize += info.Size()
	mod := info.ModTime()
	if b.Oldest.IsZero() || mod.Before(b.Oldest) {
		b.Oldest = mod
	}
	if b.Newest.IsZero() || mod.After(b.Newest) {
		b.Newest = mod
	}
	return b
}

// TopEntries returns the n most-served entry keys, most-served first.
func (c *Cache) TopEntries(n int) []string {
	c.meta.mu.Lock()
	counts := make(map[string]int, len(c.meta.state.HitCounts))
	for key, count := range c.meta.state.HitCounts {
		counts[key] = count
	}
	c.meta.mu.Unlock()

	keys := lo.Keys(counts)
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n < len(keys) {
		keys = keys[:n]
	}
	return keys
}
