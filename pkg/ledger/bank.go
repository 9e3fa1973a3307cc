package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bank is an in-process native-currency ledger: one balance per address.
// Backs the engine's Bank collaborator for devnet and tests.
type Bank struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

// NewBank creates an empty bank
func NewBank() *Bank {
	return &Bank{balances: make(map[common.Address]*big.Int)}
}

// Mint credits amount to an address (devnet faucet)
func (b *Bank) Mint(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive: %s", amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.balanceLocked(addr).Add(b.balanceLocked(addr), amount)
	return nil
}

// Transfer moves amount between addresses.
// Fails without movement on insufficient funds.
func (b *Bank) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount: %s", amount)
	}
	if amount.Sign() == 0 {
		return nil // No-op for zero amount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.balanceLocked(from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient funds: %s has %s, need %s", from.Hex(), src, amount)
	}

	src.Sub(src, amount)
	b.balanceLocked(to).Add(b.balanceLocked(to), amount)
	return nil
}

// BalanceOf returns the current balance of an address
func (b *Bank) BalanceOf(addr common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if bal, ok := b.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (b *Bank) balanceLocked(addr common.Address) *big.Int {
	bal, ok := b.balances[addr]
	if !ok {
		bal = new(big.Int)
		b.balances[addr] = bal
	}
	return bal
}
