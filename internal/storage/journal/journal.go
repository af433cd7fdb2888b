// Package journal persists vault events in a WAL so operations can be
// replayed or streamed after a restart.
package journal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/grailfinance/tokenbank/internal/domain"
)

const (
	DefaultDir   = "./wal/vault"
	segmentLimit = 1000
	maxSegments  = 100

	eventKeyPrefix = "vault_event_"
)

// WALStore is a WAL-backed append-only event journal.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes the journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "event_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init vault event WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes the event to the journal.
func (s *WALStore) Append(event domain.VaultEvent) error {
	if s == nil || s.wal == nil {
		return errors.New("event journal is not initialized")
	}
	if event.Kind == "" {
		return errors.New("event kind is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal vault event")
	}

	key := eventKeyPrefix + string(event.Kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// EventsAfter returns all events written after the provided index.
func (s *WALStore) EventsAfter(index uint64) ([]domain.EventRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("event journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.EventRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, eventKeyPrefix) {
			continue
		}

		var event domain.VaultEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrap(err, "decode vault event")
		}
		records = append(records, domain.EventRecord{Index: idx, Event: event})
	}

	return records, nil
}

// CurrentIndex returns the latest journal index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("event journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
