package escrow

import "fmt"

// Pebble key schema
// Design principles:
// 1. Prefix-based for range scans (all open orders, closed history)
// 2. Zero-padded ids for lexicographic ordering
// 3. Single meta key for the monotonic id counter
//
//   ord:<id>    → PurchaseOrder (active: Open or Committed)
//   closed:<id> → ClosedOrder   (terminal archive)
//   meta:nextid → next order id (big-endian decimal)

const (
	prefixOrder  = "ord:"
	prefixClosed = "closed:"
	keyNextID    = "meta:nextid"
)

// orderKey returns the key for an active order
// Format: "ord:{id}" with 20-digit zero padding
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// closedKey returns the key for an archived closed order
// Format: "closed:{id}" with 20-digit zero padding
func closedKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixClosed, id))
}

// orderPrefix returns the prefix for all active orders
func orderPrefix() []byte {
	return []byte(prefixOrder)
}

// closedPrefix returns the prefix for the closed-order archive
func closedPrefix() []byte {
	return []byte(prefixClosed)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
