// Package pending tracks the commands a vehicle has been sent but has not yet
// resolved.
package pending

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrDuplicate is returned when a command id is inserted twice.
var ErrDuplicate = errors.New("pending: command already present")

// Record is an issued, not yet resolved command. Records are immutable once
// inserted.
type Record struct {
	CommandID string    `json:"commandId"`
	Type      string    `json:"type"`
	Params    any       `json:"params"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store maps command ids to records for a single vehicle.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Insert adds rec. Ids are expected to be fresh; an existing id is rejected
// and left untouched.
func (s *Store) Insert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.CommandID]; ok {
		return ErrDuplicate
	}
	s.records[rec.CommandID] = rec
	return nil
}

// Remove deletes the record and reports whether it was present. Removing an
// unknown id is a no-op.
func (s *Store) Remove(commandID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[commandID]; !ok {
		return false
	}
	delete(s.records, commandID)
	return true
}

// Find returns the record for commandID.
func (s *Store) Find(commandID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[commandID]
	return rec, ok
}

// Clear discards every record and returns what was discarded.
func (s *Store) Clear() []Record {
	s.mu.Lock()
	old := s.records
	s.records = make(map[string]Record)
	s.mu.Unlock()
	return sortRecords(old)
}

// RemoveExpired drops records whose ExpiresAt is at or before now.
func (s *Store) RemoveExpired(now time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for id, rec := range s.records {
		if rec.ExpiresAt.IsZero() || rec.ExpiresAt.After(now) {
			continue
		}
		delete(s.records, id)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// Len returns the number of pending records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// List returns a snapshot ordered by issue time.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortRecords(s.records)
}

func sortRecords(m map[string]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].CommandID < out[j].CommandID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}
