package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PurchaseOrder is one escrowed swap offer. The creator has already deposited
// PaymentValue of PaymentAsset with the engine; a filler reserves the order by
// posting CollateralValue of CollateralAsset, then closes it by delivering
// PurchaseValue of PurchaseAsset to the creator.
//
// A record exists in the active registry iff the order is Open or Committed.
// Filled and cancelled orders are removed from the active keyspace (so escrow
// bookkeeping is a single presence check) and archived as ClosedOrder.
type PurchaseOrder struct {
	ID      uint64         `json:"id"`
	Creator common.Address `json:"creator"`

	PurchaseAsset Asset    `json:"purchaseAsset"`
	PurchaseValue *big.Int `json:"purchaseValue"`

	PaymentAsset Asset    `json:"paymentAsset"`
	PaymentValue *big.Int `json:"paymentValue"` // escrowed at creation, immutable after

	CollateralAsset Asset    `json:"collateralAsset"`
	CollateralValue *big.Int `json:"collateralValue"`

	Committed bool           `json:"committed"`
	Filler    common.Address `json:"filler"` // zero until committed

	// TimeToFill is an advisory fill window in milliseconds, recorded at
	// creation. No transition reads or enforces it.
	TimeToFill int64 `json:"timeToFill"`

	CreatedAt   int64 `json:"createdAt"`   // Unix milliseconds
	CommittedAt int64 `json:"committedAt"` // zero until committed
}

// Validate checks record invariants
func (o *PurchaseOrder) Validate() error {
	if o.PurchaseValue == nil || o.PaymentValue == nil || o.CollateralValue == nil {
		return fmt.Errorf("order %d: nil value", o.ID)
	}
	if o.PurchaseValue.Sign() < 0 || o.PaymentValue.Sign() < 0 || o.CollateralValue.Sign() < 0 {
		return fmt.Errorf("order %d: negative value", o.ID)
	}
	if o.Committed != (o.Filler != (common.Address{})) {
		return fmt.Errorf("order %d: committed=%v but filler=%s", o.ID, o.Committed, o.Filler.Hex())
	}
	return nil
}

// Outcome records how a closed order left the active registry
type Outcome int8

const (
	OutcomeFilled Outcome = iota
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFilled:
		return "filled"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ClosedOrder is the immutable archive entry written when an order reaches a
// terminal state. Kept out of the active keyspace so no code path can re-read
// stale escrow amounts.
type ClosedOrder struct {
	PurchaseOrder
	Outcome  Outcome `json:"outcome"`
	ClosedAt int64   `json:"closedAt"` // Unix milliseconds
}
