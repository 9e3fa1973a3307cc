package escrow

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store provides Pebble-based persistence for active orders, the closed-order
// archive, and the id counter. Pure storage: no lifecycle validation lives
// here. Thread-safe through the Engine's mutex.
type Store struct {
	db *pebble.DB
}

// NewStore opens a Pebble database at the given path
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:                64 << 20,                   // 64MB memtable
		MaxConcurrentCompactions:    func() int { return 3 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20, // 64MB
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10, // 512KB
		DisableAutomaticCompactions: false,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveOrder persists an active order
func (s *Store) SaveOrder(order *PurchaseOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	if err := s.db.Set(orderKey(order.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	return nil
}

// LoadOrder loads an active order.
// Returns nil for ids that never existed or were already deleted; the two
// cases are indistinguishable (no tombstones).
func (s *Store) LoadOrder(id uint64) (*PurchaseOrder, error) {
	data, closer, err := s.db.Get(orderKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	var order PurchaseOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	return &order, nil
}

// DeleteOrder removes an active order
func (s *Store) DeleteOrder(id uint64) error {
	if err := s.db.Delete(orderKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// LoadOpenOrders scans all active orders in id order
func (s *Store) LoadOpenOrders() ([]*PurchaseOrder, error) {
	prefix := orderPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var orders []*PurchaseOrder
	for iter.First(); iter.Valid(); iter.Next() {
		var order PurchaseOrder
		if err := json.Unmarshal(iter.Value(), &order); err != nil {
			continue // Skip invalid entries
		}
		orders = append(orders, &order)
	}

	return orders, nil
}

// CloseOrder atomically archives the terminal record and deletes the active
// one. Single batch commit so the registry can never show both or neither.
func (s *Store) CloseOrder(closed *ClosedOrder) error {
	data, err := json.Marshal(closed)
	if err != nil {
		return fmt.Errorf("failed to marshal closed order: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(closedKey(closed.ID), data, nil); err != nil {
		return err
	}
	if err := batch.Delete(orderKey(closed.ID), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to close order %d: %w", closed.ID, err)
	}

	return nil
}

// LoadClosed loads an archived order.
// Returns nil if the id was never closed.
func (s *Store) LoadClosed(id uint64) (*ClosedOrder, error) {
	data, closer, err := s.db.Get(closedKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get closed order: %w", err)
	}
	defer closer.Close()

	var closed ClosedOrder
	if err := json.Unmarshal(data, &closed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal closed order: %w", err)
	}

	return &closed, nil
}

// LoadRecentClosed loads the most recent N archive entries, newest first
func (s *Store) LoadRecentClosed(limit int) ([]*ClosedOrder, error) {
	prefix := closedPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var closed []*ClosedOrder
	for iter.Last(); iter.Valid() && len(closed) < limit; iter.Prev() {
		var c ClosedOrder
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue // Skip invalid entries
		}
		closed = append(closed, &c)
	}

	return closed, nil
}

// LoadNextID loads the persisted id counter.
// Returns base if the counter was never written.
func (s *Store) LoadNextID(base uint64) (uint64, error) {
	data, closer, err := s.db.Get([]byte(keyNextID))
	if err == pebble.ErrNotFound {
		return base, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get next id: %w", err)
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt next id: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// SaveNextID persists the id counter
func (s *Store) SaveNextID(next uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := s.db.Set([]byte(keyNextID), buf[:], pebble.Sync); err != nil {
		return fmt.Errorf("failed to save next id: %w", err)
	}
	return nil
}
