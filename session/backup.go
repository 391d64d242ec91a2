package session

import (
	"maps"

	"github.com/lifetrack/lifetrack/internal/canon"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/persist"
)

// Backup is an immutable snapshot of the in-memory session and the raw
// stored values, taken before a sequence that must change local and remote
// state together.
type Backup struct {
	session *models.ActiveSession
	stored  persist.Snapshot
}

// Session returns a copy of the captured in-memory session.
func (b Backup) Session() *models.ActiveSession {
	return b.session.Clone()
}

// Stored returns a copy of the captured storage contents.
func (b Backup) Stored() persist.Snapshot {
	return maps.Clone(b.stored)
}

// Digest identifies the captured state. Two backups of the same state have
// the same digest.
func (b Backup) Digest() (string, error) {
	return canon.DigestOf(struct {
		Session *models.ActiveSession `json:"session"`
		Stored  persist.Snapshot      `json:"stored"`
	}{b.session, b.stored})
}

// CreateBackup captures the current session and a fresh read of every
// stored session key.
func (s *State) CreateBackup() Backup {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Backup{
		session: s.current.Clone(),
		stored:  s.store.Snapshot(),
	}
}

// RestoreFromBackup writes the captured storage contents back verbatim and
// then sets the captured session in memory, with no further write. Memory is
// restored even when the write fails, so the caller keeps the session it
// had; the write error is returned.
func (s *State) RestoreFromBackup(b Backup) error {
	s.mu.Lock()
	defer s.unlock()

	var err error

	werr := s.store.Restore(b.stored)
	if werr != nil {
		err = errRestore.Wrap(werr)
	}

	_ = s.commit(b.session.Clone(), true)

	return err
}
