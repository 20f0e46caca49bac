// Package contexts persists conversation histories on disk so multi-turn
// exchanges can resume across process restarts. Each context is one JSON
// file of messages, addressed by a hash of its caller-chosen identifier.
// All store errors degrade to empty history or a no-op; conversation
// persistence is never allowed to fail a generation.
package contexts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wanderhaven/llmcore/llm"
)

// NewContextID mints a fresh context identifier.
func NewContextID() string {
	return uuid.NewString()
}

// Store is a directory-backed conversation context store. It implements
// llm.ContextStore.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the stored history for contextID, oldest first. Missing
// or unreadable contexts come back empty.
func (s *Store) Load(contextID string) []llm.Message {
	data, err := os.ReadFile(s.path(contextID))
	if err != nil {
		return nil
	}
	var messages []llm.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		s.logger.Warn().Str("context_id", contextID).Err(err).Msg("Context file corrupt, treating as empty")
		return nil
	}
	return messages
}

// Save replaces the stored history for contextID. Failures are logged
// and swallowed.
func (s *Store) Save(contextID string, messages []llm.Message) {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		s.logger.Warn().Str("context_id", contextID).Err(err).Msg("Failed to encode context")
		return
	}
	if err := os.WriteFile(s.path(contextID), data, 0o644); err != nil {
		s.logger.Warn().Str("context_id", contextID).Err(err).Msg("Failed to write context")
	}
}

// Clear removes the stored history for contextID. Clearing a context
// that does not exist is not an error.
func (s *Store) Clear(contextID string) error {
	err := os.Remove(s.path(contextID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep removes contexts not written to within maxAge and returns how
// many were removed. Contexts have no automatic expiry; Sweep is the
// administrative pruning path.
func (s *Store) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read context directory")
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}

func (s *Store) path(contextID string) string {
	sum := sha256.Sum256([]byte(contextID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}
