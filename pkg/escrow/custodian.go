package escrow

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bank moves native currency between addresses. The engine owns one address
// (the escrow vault) on this ledger.
type Bank interface {
	// Transfer moves amount from one address to another.
	// Must fail without partial movement.
	Transfer(from, to common.Address, amount *big.Int) error
}

// TokenLedger moves fungible-token balances. The engine acts as an approved
// spender: pulls consume the owner's allowance toward the escrow address.
type TokenLedger interface {
	// Transfer moves amount of token from one address to another.
	Transfer(token, from, to common.Address, amount *big.Int) error
	// TransferFrom moves amount of token from owner to recipient, spending
	// spender's allowance. Must fail without partial movement.
	TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error
}

// Custodian moves value of either asset kind between external addresses and
// engine-held escrow. Pure mechanism: it knows nothing about order state.
// All asset-kind branching lives here so lifecycle code stays kind-agnostic.
type Custodian struct {
	bank   Bank
	tokens TokenLedger
	vault  common.Address // the engine's own address on both ledgers

	mu       sync.RWMutex
	escrowed map[string]*big.Int // asset key → total engine-held value
}

// NewCustodian creates a custodian holding escrow at vault
func NewCustodian(bank Bank, tokens TokenLedger, vault common.Address) *Custodian {
	return &Custodian{
		bank:     bank,
		tokens:   tokens,
		vault:    vault,
		escrowed: make(map[string]*big.Int),
	}
}

// Vault returns the engine's escrow address
func (c *Custodian) Vault() common.Address {
	return c.vault
}

// PullInto moves amount of asset from an external address into escrow.
//
// Native: attached must equal amount exactly (no partial or excess
// acceptance), then the attached value is moved to the vault.
// Token: amount is pulled from the owner's allowance toward the vault.
//
// A failed pull moves nothing and must not be retried here; the enclosing
// operation aborts.
func (c *Custodian) PullInto(asset Asset, amount *big.Int, from common.Address, attached *big.Int) error {
	if asset.IsNative() {
		if attached == nil || attached.Cmp(amount) != 0 {
			return fmt.Errorf("%w: attached %s, need %s", ErrWrongNativeAmount, bigString(attached), amount)
		}
		if err := c.bank.Transfer(from, c.vault, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	} else {
		if err := c.tokens.TransferFrom(asset.Token, c.vault, from, c.vault, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTokenTransferFailed, err)
		}
	}

	c.credit(asset, amount)
	return nil
}

// PushFrom releases amount of asset from escrow to an external address
func (c *Custodian) PushFrom(asset Asset, amount *big.Int, to common.Address) error {
	var err error
	if asset.IsNative() {
		err = c.bank.Transfer(c.vault, to, amount)
	} else {
		err = c.tokens.Transfer(asset.Token, c.vault, to, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	c.debit(asset, amount)
	return nil
}

// Deliver moves amount of asset directly between two external addresses,
// bypassing escrow. Used for the purchase leg of a fill: the engine never
// holds the purchase asset. Token delivery spends the sender's allowance.
func (c *Custodian) Deliver(asset Asset, amount *big.Int, from, to common.Address) error {
	var err error
	if asset.IsNative() {
		err = c.bank.Transfer(from, to, amount)
	} else {
		err = c.tokens.TransferFrom(asset.Token, c.vault, from, to, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// Escrowed returns the total engine-held value of asset
func (c *Custodian) Escrowed(asset Asset) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if total, ok := c.escrowed[asset.key()]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}

func (c *Custodian) credit(asset Asset, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, ok := c.escrowed[asset.key()]
	if !ok {
		total = new(big.Int)
		c.escrowed[asset.key()] = total
	}
	total.Add(total, amount)
}

func (c *Custodian) debit(asset Asset, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if total, ok := c.escrowed[asset.key()]; ok {
		total.Sub(total, amount)
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
