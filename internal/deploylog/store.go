// Package deploylog holds the per-subject deployment log and the ephemeral
// run-status register. Nothing here is persisted; entries live for the
// lifetime of the process or until the subject is cleared.
package deploylog

import (
	"sync"
	"time"

	"launchpad-deployment/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is the log/status channel shared by the pipeline and its observers.
type Store interface {
	Append(subjectID int64, level models.LogLevel, message string)
	List(subjectID int64) []models.LogEntry
	Clear(subjectID int64)
	SetStatus(subjectID int64, status models.RunStatus)
	Status(subjectID int64) (models.RunStatus, bool)
}

// MemoryStore is a Store backed by maps guarded by a single RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	logs   map[int64][]models.LogEntry
	status map[int64]models.RunStatus
	now    func() time.Time
	mirror *logrus.Entry
}

// NewMemoryStore creates an empty store. Every appended entry is also
// written to mirror when it is non-nil.
func NewMemoryStore(mirror *logrus.Entry) *MemoryStore {
	return &MemoryStore{
		logs:   make(map[int64][]models.LogEntry),
		status: make(map[int64]models.RunStatus),
		now:    time.Now,
		mirror: mirror,
	}
}

func (s *MemoryStore) Append(subjectID int64, level models.LogLevel, message string) {
	entry := models.LogEntry{
		Timestamp: s.now(),
		Level:     level,
		Message:   message,
	}

	s.mu.Lock()
	s.logs[subjectID] = append(s.logs[subjectID], entry)
	s.mu.Unlock()

	if s.mirror != nil {
		e := s.mirror.WithFields(logrus.Fields{"subject_id": subjectID, "level_tag": level})
		switch level {
		case models.LevelError:
			e.Error(message)
		case models.LevelWarning:
			e.Warn(message)
		default:
			e.Info(message)
		}
	}
}

// List returns a copy of the subject's entries in append order.
func (s *MemoryStore) List(subjectID int64) []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.logs[subjectID]
	out := make([]models.LogEntry, len(entries))
	copy(out, entries)
	return out
}

func (s *MemoryStore) Clear(subjectID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.logs, subjectID)
	delete(s.status, subjectID)
}

func (s *MemoryStore) SetStatus(subjectID int64, status models.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status[subjectID] = status
}

func (s *MemoryStore) Status(subjectID int64) (models.RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.status[subjectID]
	return status, ok
}
