package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger is an in-process fungible-token ledger with ERC-20 shaped
// balance and allowance bookkeeping, for any number of token contracts.
// Backs the engine's TokenLedger collaborator for devnet and tests.
//
// Guards:
//   - transfer:     balances[from] >= amount
//   - transferFrom: balances[owner] >= amount && allowances[owner][spender] >= amount
//
// Both fail without partial movement.
type TokenLedger struct {
	mu         sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int                // token → owner → balance
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token → owner → spender → allowance
}

// NewTokenLedger creates an empty token ledger
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits amount of token to an owner (devnet faucet)
func (l *TokenLedger) Mint(token, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive: %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(token, owner)
	bal.Add(bal, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance of token.
// Overwrites any previous allowance (ERC-20 approve semantics).
func (l *TokenLedger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid allowance: %s", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byOwner, ok := l.allowances[token]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]*big.Int)
		l.allowances[token] = byOwner
	}
	bySpender, ok := byOwner[owner]
	if !ok {
		bySpender = make(map[common.Address]*big.Int)
		byOwner[owner] = bySpender
	}
	bySpender[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns spender's remaining allowance over owner's token balance
func (l *TokenLedger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if a := l.allowanceLocked(token, owner, spender); a != nil {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// BalanceOf returns owner's balance of token
func (l *TokenLedger) BalanceOf(token, owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if byOwner, ok := l.balances[token]; ok {
		if bal, ok := byOwner[owner]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}

// Transfer moves amount of token from one owner to another
func (l *TokenLedger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount: %s", amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.moveLocked(token, from, to, amount)
}

// TransferFrom moves amount of token from owner to recipient, spending
// spender's allowance
func (l *TokenLedger) TransferFrom(token, spender, owner, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount: %s", amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceLocked(token, owner, spender)
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient allowance: spender %s has %s of %s's %s, need %s",
			spender.Hex(), bigOrZero(allowance), owner.Hex(), token.Hex(), amount)
	}

	if err := l.moveLocked(token, owner, to, amount); err != nil {
		return err
	}

	allowance.Sub(allowance, amount)
	return nil
}

func (l *TokenLedger) moveLocked(token, from, to common.Address, amount *big.Int) error {
	src := l.balanceLocked(token, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s has %s of %s, need %s",
			from.Hex(), src, token.Hex(), amount)
	}

	src.Sub(src, amount)
	dst := l.balanceLocked(token, to)
	dst.Add(dst, amount)
	return nil
}

func (l *TokenLedger) balanceLocked(token, owner common.Address) *big.Int {
	byOwner, ok := l.balances[token]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		l.balances[token] = byOwner
	}
	bal, ok := byOwner[owner]
	if !ok {
		bal = new(big.Int)
		byOwner[owner] = bal
	}
	return bal
}

func (l *TokenLedger) allowanceLocked(token, owner, spender common.Address) *big.Int {
	if byOwner, ok := l.allowances[token]; ok {
		if bySpender, ok := byOwner[owner]; ok {
			return bySpender[spender]
		}
	}
	return nil
}

func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
