package scheduler

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wardenkit/warden/lib/logging"
	"github.com/wardenkit/warden/lib/types"
)

// PendingStore persists pending sanction reversals so they survive a
// process restart. Keys are the sanction registry keys; at most one row
// exists per key.
type PendingStore interface {
	// Save upserts a pending reversal under its key
	Save(sanction *types.ScheduledSanction) error

	// Delete removes a pending reversal; deleting a missing key is not an
	// error
	Delete(key string) error

	// Get returns the pending reversal for a key, or nil if none exists
	Get(key string) (*types.ScheduledSanction, error)

	// List returns every pending reversal
	List() ([]*types.ScheduledSanction, error)

	// Close releases storage resources
	Close() error
}

// cborEncMode keeps nanosecond timestamp precision so a stored expiry
// compares equal to its in-memory counterpart
var cborEncMode, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()

func cborEncode(value interface{}) ([]byte, error) {
	return cborEncMode.Marshal(value)
}

func cborDecode(data []byte, value interface{}) error {
	return cbor.Unmarshal(data, value)
}

// BadgerholdStore implements PendingStore on a badgerhold database
type BadgerholdStore struct {
	db *badgerhold.Store
}

// InitPendingStore opens the pending-reversal database at the given path
func InitPendingStore(basePath string) (*BadgerholdStore, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create scheduler directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Encoder = cborEncode
	options.Decoder = cborDecode
	options.Options = badger.DefaultOptions(basePath).WithLogger(nil)

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open pending sanction store: %w", err)
	}

	logging.Infof("Pending sanction store opened at %s", basePath)
	return &BadgerholdStore{db: db}, nil
}

// Save upserts a pending reversal under its key
func (s *BadgerholdStore) Save(sanction *types.ScheduledSanction) error {
	if sanction == nil {
		return errors.New("nil sanction")
	}
	if err := s.db.Upsert(sanction.Key(), sanction); err != nil {
		return fmt.Errorf("%w: failed to save pending reversal: %v", types.ErrPersistence, err)
	}
	return nil
}

// Delete removes a pending reversal
func (s *BadgerholdStore) Delete(key string) error {
	err := s.db.Delete(key, &types.ScheduledSanction{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("%w: failed to delete pending reversal: %v", types.ErrPersistence, err)
	}
	return nil
}

// Get returns the pending reversal for a key, or nil if none exists
func (s *BadgerholdStore) Get(key string) (*types.ScheduledSanction, error) {
	var row types.ScheduledSanction
	err := s.db.Get(key, &row)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read pending reversal: %v", types.ErrPersistence, err)
	}
	return &row, nil
}

// List returns every pending reversal
func (s *BadgerholdStore) List() ([]*types.ScheduledSanction, error) {
	var rows []types.ScheduledSanction
	if err := s.db.Find(&rows, nil); err != nil {
		return nil, fmt.Errorf("%w: failed to list pending reversals: %v", types.ErrPersistence, err)
	}

	pending := make([]*types.ScheduledSanction, 0, len(rows))
	for i := range rows {
		pending = append(pending, &rows[i])
	}
	return pending, nil
}

// Close releases the underlying badger database
func (s *BadgerholdStore) Close() error {
	return s.db.Close()
}

// MemoryPendingStore is an in-memory PendingStore for tests
type MemoryPendingStore struct {
	mu      sync.Mutex
	pending map[string]*types.ScheduledSanction
}

// NewMemoryPendingStore creates an empty in-memory pending store
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{pending: make(map[string]*types.ScheduledSanction)}
}

// Save upserts a pending reversal under its key
func (s *MemoryPendingStore) Save(sanction *types.ScheduledSanction) error {
	if sanction == nil {
		return errors.New("nil sanction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sanction
	s.pending[sanction.Key()] = &copied
	return nil
}

// Delete removes a pending reversal
func (s *MemoryPendingStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	return nil
}

// Get returns the pending reversal for a key, or nil if none exists
func (s *MemoryPendingStore) Get(key string) (*types.ScheduledSanction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sanction, ok := s.pending[key]
	if !ok {
		return nil, nil
	}
	copied := *sanction
	return &copied, nil
}

// List returns every pending reversal
func (s *MemoryPendingStore) List() ([]*types.ScheduledSanction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]*types.ScheduledSanction, 0, len(s.pending))
	for _, sanction := range s.pending {
		copied := *sanction
		pending = append(pending, &copied)
	}
	return pending, nil
}

// Close releases resources
func (s *MemoryPendingStore) Close() error { return nil }
