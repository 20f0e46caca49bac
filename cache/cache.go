// Package cache implements a content-addressed on-disk cache for
// generation responses. Entries are JSON files named by a SHA-256 key over
// the request's identity; freshness is judged from file modification time.
// Reads self-heal: stale or corrupt entries are deleted and reported as
// misses. Writes are best-effort and never fail the request that
// triggered them.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderhaven/llmcore/llm"
)

// DefaultMaxAge is how long an entry stays fresh when no age is
// configured.
const DefaultMaxAge = 7 * 24 * time.Hour

// metadataFile sits alongside the entries and is never itself an entry.
const metadataFile = "cache_metadata.json"

// Cache is a content-addressed response cache rooted at a directory.
// All methods are safe for concurrent use.
type Cache struct {
	dir    string
	maxAge time.Duration
	meta   *metadata
	logger zerolog.Logger
}

// New opens (creating if needed) a cache rooted at dir. A non-positive
// maxAge falls back to DefaultMaxAge.
func New(dir string, maxAge time.Duration, logger zerolog.Logger) (*Cache, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &Cache{
		dir:    dir,
		maxAge: maxAge,
		logger: logger,
	}
	c.meta = newMetadata(filepath.Join(dir, metadataFile), logger)
	return c, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Key derives the cache key for a request identity. Identical inputs
// always produce the same key; any differing component produces a
// different one. Sampling parameters are deliberately not part of the
// identity, since only near-deterministic requests reach the cache.
func (c *Cache) Key(systemPrompt, userPrompt, model, contextID string) string {
	parts := []string{systemPrompt, userPrompt, model}
	if contextID != "" {
		parts = append(parts, contextID)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Get looks up a fresh entry by key. Absent, stale, and undecodable
// entries all report a miss; the latter two are removed from disk so the
// next write starts clean.
func (c *Cache) Get(key string) (*llm.Response, bool) {
	path := c.entryPath(key)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		c.logger.Debug().Str("cache_key", key).Msg("Cache entry expired, removing")
		c.remove(path)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn().Str("cache_key", key).Err(err).Msg("Cache entry unreadable, removing")
		c.remove(path)
		return nil, false
	}

	var resp llm.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn().Str("cache_key", key).Err(err).Msg("Cache entry corrupt, removing")
		c.remove(path)
		return nil, false
	}

	c.meta.RecordHit(key)
	return &resp, true
}

// Put stores a response under key. Failures are logged and swallowed; a
// cache write must never sink the generation that produced the response.
func (c *Cache) Put(key string, resp *llm.Response) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		c.logger.Warn().Str("cache_key", key).Err(err).Msg("Failed to encode cache entry")
		return
	}
	if err := os.WriteFile(c.entryPath(key), data, 0o644); err != nil {
		c.logger.Warn().Str("cache_key", key).Err(err).Msg("Failed to write cache entry")
	}
}

// Clear removes entries older than maxAge and returns how many were
// removed. A zero maxAge removes everything. The metadata file survives.
func (c *Cache) Clear(maxAge time.Duration) int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read cache directory")
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == metadataFile {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if maxAge > 0 && info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}

// RecordServerCacheUsage forwards provider-reported prompt cache token
// counts to the metadata ledger.
func (c *Cache) RecordServerCacheUsage(hitTokens, missTokens int) {
	c.meta.RecordServerCacheUsage(hitTokens, missTokens)
}

// HitCount returns how many times the entry for key has been served.
func (c *Cache) HitCount(key string) int {
	return c.meta.HitCount(key)
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Str("path", path).Err(err).Msg("Failed to remove cache entry")
	}
}
