package escrow

import "errors"

// ErrorKind classifies engine failures so API callers can distinguish
// "wrong amount" from "not your order" from "already taken"
type ErrorKind int8

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindState
	KindValueMismatch
	KindTransfer
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindValueMismatch:
		return "value_mismatch"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Stable failure reasons. Every operation aborts on the first error with no
// partial state change and no partial value movement.
var (
	// Authorization
	ErrNotOrderOwner  = errors.New("caller is not the order creator")
	ErrNotOrderFiller = errors.New("caller is not the committed filler")

	// State
	ErrOrderNotFound    = errors.New("order not found")
	ErrAlreadyCommitted = errors.New("order already committed")
	ErrNotCommitted     = errors.New("order not committed")

	// Value mismatch
	ErrWrongNativeAmount   = errors.New("attached native value does not equal required amount")
	ErrIncorrectCollateral = errors.New("collateral does not equal required amount")

	// Transfer
	ErrTokenTransferFailed = errors.New("token ledger rejected transfer")
	ErrTransferFailed      = errors.New("asset transfer rejected")
)

// KindOf maps an engine error to its taxonomy kind
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotOrderOwner), errors.Is(err, ErrNotOrderFiller):
		return KindAuthorization
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrAlreadyCommitted), errors.Is(err, ErrNotCommitted):
		return KindState
	case errors.Is(err, ErrWrongNativeAmount), errors.Is(err, ErrIncorrectCollateral):
		return KindValueMismatch
	case errors.Is(err, ErrTokenTransferFailed), errors.Is(err, ErrTransferFailed):
		return KindTransfer
	default:
		return KindUnknown
	}
}
