// Package jsonstore implements the MemberStore port on a single JSON file.
//
// The file holds the full roster as a map keyed by member ID. Reads and
// writes fail soft: a missing, unreadable, or unparsable file loads as an
// empty roster, and a failed write is logged and abandoned. Every mutating
// operation reloads the file immediately before applying its change, which
// narrows but does not close the window for lost updates between concurrent
// writers; the store is last-writer-wins at file granularity.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rosterhub/rosterhub/internal/domain/model"
	"github.com/rosterhub/rosterhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MemberStore = (*Store)(nil)

// Store is the JSON file implementation of the MemberStore port.
type Store struct {
	path   string
	logger *slog.Logger
}

// New creates a Store backed by the file at path. The file need not exist yet.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Load returns the full roster. A missing file is an empty roster; a read or
// parse failure is logged and also yields an empty roster.
func (s *Store) Load(_ context.Context) map[string]model.Member {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("roster read failed", "path", s.path, "error", err)
		}
		return map[string]model.Member{}
	}

	var members map[string]model.Member
	if err := json.Unmarshal(data, &members); err != nil {
		s.logger.Error("roster parse failed", "path", s.path, "error", err)
		return map[string]model.Member{}
	}
	if members == nil {
		members = map[string]model.Member{}
	}
	return members
}

// Save replaces the full roster on disk. Write failures are logged and the
// in-memory result is dropped; the previous file contents remain.
func (s *Store) Save(_ context.Context, members map[string]model.Member) {
	data, err := json.MarshalIndent(members, "", "  ")
	if err != nil {
		s.logger.Error("roster encode failed", "path", s.path, "error", err)
		return
	}
	if err := atomicWriteFile(s.path, data, 0o600); err != nil {
		s.logger.Error("roster write failed", "path", s.path, "error", err)
	}
}

// Upsert inserts or overwrites the record keyed by member.ID. Records with an
// empty ID are dropped with a log line since they cannot satisfy the store key
// invariant.
func (s *Store) Upsert(ctx context.Context, member model.Member) {
	if member.ID == "" {
		s.logger.Error("dropping member with empty id")
		return
	}

	members := s.Load(ctx)
	members[member.ID] = member.Normalize()
	s.Save(ctx, members)
}

// Remove deletes one record, reporting whether it existed.
func (s *Store) Remove(ctx context.Context, id string) bool {
	members := s.Load(ctx)
	if _, ok := members[id]; !ok {
		return false
	}
	delete(members, id)
	s.Save(ctx, members)
	return true
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) int {
	members := s.Load(ctx)
	n := len(members)
	if n == 0 {
		return 0
	}
	s.Save(ctx, map[string]model.Member{})
	return n
}

// Sweep removes records whose token pair is unusable: no refresh token (the
// record can never be renewed) or no access token (nothing to act with).
func (s *Store) Sweep(ctx context.Context) int {
	members := s.Load(ctx)

	var removed int
	for id, m := range members {
		if !m.Durable() || !m.Invitable() {
			delete(members, id)
			removed++
		}
	}
	if removed > 0 {
		s.Save(ctx, members)
	}
	return removed
}

// ReplaceAll overwrites the roster file wholesale with raw. The current file
// is first backed up to a ".bak" sibling. raw must parse as a roster map;
// no further schema validation is applied.
func (s *Store) ReplaceAll(_ context.Context, raw []byte) error {
	var members map[string]model.Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return fmt.Errorf("replacement roster does not parse: %w", err)
	}

	if current, err := os.ReadFile(s.path); err == nil {
		if err := atomicWriteFile(s.path+".bak", current, 0o600); err != nil {
			return fmt.Errorf("back up current roster: %w", err)
		}
	}

	if err := atomicWriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write replacement roster: %w", err)
	}
	return nil
}

// atomicWriteFile writes data to path via a temp file and rename so readers
// never observe a partial write.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".roster-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	_ = os.Chmod(tmpPath, perm)
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
