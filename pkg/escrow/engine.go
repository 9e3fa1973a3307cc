package escrow

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uhyunpark/safeswap/pkg/util"
	"go.uber.org/zap"
)

// Engine is the order lifecycle state machine:
//
//	Open → Committed → Filled
//	Open → Cancelled
//
// Both terminal states are represented by the record's absence from the
// active registry (with an archive entry for history). Escrow is always
// pulled into custody before the state transition that depends on it, and
// released as the last visible effect of the transition that consumes it.
//
// The mutex serializes operations: commit and fill are mutually exclusive
// with each other and with cancel for the same id, and every operation
// re-reads the current record before deciding whether to proceed.
type Engine struct {
	mu      sync.Mutex
	reg     *Registry
	cust    *Custodian
	clock   util.Clock
	emitter Emitter
	log     *zap.SugaredLogger
}

// NewEngine creates the lifecycle engine over a registry and custodian
func NewEngine(reg *Registry, cust *Custodian, clock util.Clock, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		reg:     reg,
		cust:    cust,
		clock:   clock,
		emitter: NopEmitter{},
		log:     logger,
	}
}

// SetEmitter installs the lifecycle notification sink
func (e *Engine) SetEmitter(em Emitter) {
	if em == nil {
		em = NopEmitter{}
	}
	e.emitter = em
}

// Custodian exposes escrow bookkeeping for queries
func (e *Engine) Custodian() *Custodian {
	return e.cust
}

// CreateParams are the arguments to CreatePurchaseOrder
type CreateParams struct {
	PurchaseAsset   Asset
	PurchaseValue   *big.Int
	PaymentAsset    Asset
	PaymentValue    *big.Int
	CollateralAsset Asset
	CollateralValue *big.Int
	TimeToFill      int64 // advisory, milliseconds
}

// CreatePurchaseOrder escrows the creator's payment and opens a new order.
// The payment pull happens before the record exists, so a failed pull leaves
// no trace. Returns the newly assigned id.
func (e *Engine) CreatePurchaseOrder(creator common.Address, p CreateParams, attached *big.Int) (uint64, error) {
	if err := checkValues(p.PurchaseValue, p.PaymentValue, p.CollateralValue); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cust.PullInto(p.PaymentAsset, p.PaymentValue, creator, attached); err != nil {
		return 0, err
	}

	now := e.clock.Now().UnixMilli()
	order := &PurchaseOrder{
		Creator:         creator,
		PurchaseAsset:   p.PurchaseAsset,
		PurchaseValue:   new(big.Int).Set(p.PurchaseValue),
		PaymentAsset:    p.PaymentAsset,
		PaymentValue:    new(big.Int).Set(p.PaymentValue),
		CollateralAsset: p.CollateralAsset,
		CollateralValue: new(big.Int).Set(p.CollateralValue),
		TimeToFill:      p.TimeToFill,
		CreatedAt:       now,
	}

	id, err := e.reg.Allocate(order)
	if err != nil {
		// Undo the pull so a storage failure leaves no value in escrow
		if rerr := e.cust.PushFrom(p.PaymentAsset, p.PaymentValue, creator); rerr != nil {
			e.log.Errorw("escrow_refund_failed", "creator", creator.Hex(), "err", rerr)
		}
		return 0, fmt.Errorf("failed to allocate order: %w", err)
	}

	e.log.Infow("order_created",
		"id", id,
		"creator", creator.Hex(),
		"payment_asset", p.PaymentAsset.String(),
		"payment_value", p.PaymentValue.String(),
		"collateral_value", p.CollateralValue.String())

	e.emitter.Emit(Event{Type: EventOrderCreated, OrderID: id, Creator: creator, Timestamp: now})
	return id, nil
}

// CommitToPurchaseOrder reserves an Open order exclusively for the caller by
// escrowing the required collateral. This is the mutual-exclusion point:
// exactly one caller's commit may succeed per order; any later attempt fails
// with ErrAlreadyCommitted regardless of caller.
func (e *Engine) CommitToPurchaseOrder(id uint64, filler common.Address, attached *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.reg.Get(id)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("commit order %d: %w", id, ErrOrderNotFound)
	}
	if order.Committed {
		return fmt.Errorf("commit order %d: %w", id, ErrAlreadyCommitted)
	}
	if order.CollateralAsset.IsNative() && (attached == nil || attached.Cmp(order.CollateralValue) != 0) {
		return fmt.Errorf("commit order %d: %w: attached %s, need %s",
			id, ErrIncorrectCollateral, bigString(attached), order.CollateralValue)
	}

	if err := e.cust.PullInto(order.CollateralAsset, order.CollateralValue, filler, attached); err != nil {
		return fmt.Errorf("commit order %d: %w", id, err)
	}

	now := e.clock.Now().UnixMilli()
	order.Committed = true
	order.Filler = filler
	order.CommittedAt = now

	if err := e.reg.Update(order); err != nil {
		if rerr := e.cust.PushFrom(order.CollateralAsset, order.CollateralValue, filler); rerr != nil {
			e.log.Errorw("collateral_refund_failed", "id", id, "filler", filler.Hex(), "err", rerr)
		}
		return fmt.Errorf("commit order %d: %w", id, err)
	}

	e.log.Infow("order_committed", "id", id, "filler", filler.Hex(),
		"collateral_asset", order.CollateralAsset.String(),
		"collateral_value", order.CollateralValue.String())

	e.emitter.Emit(Event{Type: EventOrderCommitted, OrderID: id, Creator: order.Creator, Filler: filler, Timestamp: now})
	return nil
}

// CancelPurchaseOrder returns the escrowed payment to the creator and closes
// the order. Only the creator may cancel, and only while uncommitted: once a
// filler holds the order, cancel is off the table and fill is the sole exit.
// If the release fails the record remains Open.
func (e *Engine) CancelPurchaseOrder(id uint64, caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.reg.Get(id)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("cancel order %d: %w", id, ErrOrderNotFound)
	}
	if order.Committed {
		return fmt.Errorf("cancel order %d: %w", id, ErrAlreadyCommitted)
	}
	if caller != order.Creator {
		return fmt.Errorf("cancel order %d: %w", id, ErrNotOrderOwner)
	}

	if err := e.cust.PushFrom(order.PaymentAsset, order.PaymentValue, order.Creator); err != nil {
		return fmt.Errorf("cancel order %d: %w", id, err)
	}

	now := e.clock.Now().UnixMilli()
	closed := &ClosedOrder{PurchaseOrder: *order, Outcome: OutcomeCancelled, ClosedAt: now}
	if err := e.reg.Remove(closed); err != nil {
		return fmt.Errorf("cancel order %d: %w", id, err)
	}

	e.log.Infow("order_cancelled", "id", id, "creator", order.Creator.Hex(),
		"payment_value", order.PaymentValue.String())

	e.emitter.Emit(Event{Type: EventOrderCancelled, OrderID: id, Creator: order.Creator, Timestamp: now})
	return nil
}

// FillPurchaseOrder completes the swap. In order: the committed filler
// delivers the purchase asset straight to the creator (the engine never holds
// it), then the escrowed payment and collateral are released to the filler
// together, then the order closes. If the delivery fails the order remains
// Committed and the filler may retry.
func (e *Engine) FillPurchaseOrder(id uint64, caller common.Address, attached *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.reg.Get(id)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("fill order %d: %w", id, ErrOrderNotFound)
	}
	if !order.Committed {
		return fmt.Errorf("fill order %d: %w", id, ErrNotCommitted)
	}
	if caller != order.Filler {
		return fmt.Errorf("fill order %d: %w", id, ErrNotOrderFiller)
	}
	if order.PurchaseAsset.IsNative() && (attached == nil || attached.Cmp(order.PurchaseValue) != 0) {
		return fmt.Errorf("fill order %d: %w: attached %s, need %s",
			id, ErrWrongNativeAmount, bigString(attached), order.PurchaseValue)
	}

	if err := e.cust.Deliver(order.PurchaseAsset, order.PurchaseValue, caller, order.Creator); err != nil {
		return fmt.Errorf("fill order %d: purchase leg: %w", id, err)
	}
	if err := e.cust.PushFrom(order.PaymentAsset, order.PaymentValue, caller); err != nil {
		return fmt.Errorf("fill order %d: payment release: %w", id, err)
	}
	if err := e.cust.PushFrom(order.CollateralAsset, order.CollateralValue, caller); err != nil {
		return fmt.Errorf("fill order %d: collateral release: %w", id, err)
	}

	now := e.clock.Now().UnixMilli()
	closed := &ClosedOrder{PurchaseOrder: *order, Outcome: OutcomeFilled, ClosedAt: now}
	if err := e.reg.Remove(closed); err != nil {
		return fmt.Errorf("fill order %d: %w", id, err)
	}

	e.log.Infow("order_filled", "id", id, "filler", caller.Hex(),
		"purchase_value", order.PurchaseValue.String(),
		"payment_value", order.PaymentValue.String(),
		"collateral_value", order.CollateralValue.String())

	e.emitter.Emit(Event{Type: EventOrderFilled, OrderID: id, Creator: order.Creator, Filler: caller, Timestamp: now})
	return nil
}

// GetOrder returns the active record, or nil if the order is absent
// (never existed, cancelled, or filled)
func (e *Engine) GetOrder(id uint64) (*PurchaseOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.Get(id)
}

// ListOpenOrders returns all active orders
func (e *Engine) ListOpenOrders() ([]*PurchaseOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.ListOpen()
}

// GetClosedOrder returns the archive entry for a terminal order, or nil
func (e *Engine) GetClosedOrder(id uint64) (*ClosedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.GetClosed(id)
}

// ListClosedOrders returns up to limit archive entries, newest first
func (e *Engine) ListClosedOrders(limit int) ([]*ClosedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.ListClosed(limit)
}

func checkValues(vals ...*big.Int) error {
	for _, v := range vals {
		if v == nil {
			return fmt.Errorf("nil value")
		}
		if v.Sign() < 0 {
			return fmt.Errorf("negative value %s", v)
		}
	}
	return nil
}
