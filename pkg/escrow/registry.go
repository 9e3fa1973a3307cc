package escrow

import "fmt"

// Registry owns the id→order mapping and the next-id counter.
// Identifiers are monotonically assigned starting from firstOrderID and never
// reused, even across deletions and restarts (the counter is persisted).
// Serialization is supplied by the Engine; the registry itself holds no lock.
type Registry struct {
	store  *Store
	nextID uint64
}

// firstOrderID is the base of the id sequence. Starting above zero keeps the
// zero id free as an "absent" sentinel in clients.
const firstOrderID = 1

// NewRegistry creates a registry over the given store, restoring the id
// counter from disk
func NewRegistry(store *Store) (*Registry, error) {
	next, err := store.LoadNextID(firstOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore id counter: %w", err)
	}
	return &Registry{store: store, nextID: next}, nil
}

// Allocate assigns the next unused id, stores the record, and returns the id.
// The counter is persisted before the record so a crash between the two can
// skip an id but never reuse one.
func (r *Registry) Allocate(order *PurchaseOrder) (uint64, error) {
	id := r.nextID
	if err := r.store.SaveNextID(id + 1); err != nil {
		return 0, err
	}
	r.nextID = id + 1

	order.ID = id
	if err := r.store.SaveOrder(order); err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns the active record, or nil if absent. Absent is
// indistinguishable for orders that never existed and orders already closed.
func (r *Registry) Get(id uint64) (*PurchaseOrder, error) {
	return r.store.LoadOrder(id)
}

// Update replaces the stored record for an existing id
func (r *Registry) Update(order *PurchaseOrder) error {
	return r.store.SaveOrder(order)
}

// Remove deletes the active record and writes the terminal archive entry in
// one atomic batch
func (r *Registry) Remove(closed *ClosedOrder) error {
	return r.store.CloseOrder(closed)
}

// ListOpen returns all active (Open or Committed) orders in id order
func (r *Registry) ListOpen() ([]*PurchaseOrder, error) {
	return r.store.LoadOpenOrders()
}

// GetClosed returns the archive entry for a closed order, or nil
func (r *Registry) GetClosed(id uint64) (*ClosedOrder, error) {
	return r.store.LoadClosed(id)
}

// ListClosed returns up to limit archive entries, newest first
func (r *Registry) ListClosed(limit int) ([]*ClosedOrder, error) {
	return r.store.LoadRecentClosed(limit)
}
