package escrow

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind distinguishes the two value representations the engine can hold
type AssetKind int8

const (
	// KindNative is the platform's built-in currency, moved by value attachment
	KindNative AssetKind = iota
	// KindToken is a fungible-token balance, moved through the token ledger
	KindToken
)

func (k AssetKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// Asset is a closed reference to either the native currency or a specific
// fungible-token contract. All kind-specific movement logic lives in the
// Custodian; lifecycle code treats assets as opaque.
type Asset struct {
	Kind  AssetKind      `json:"kind"`
	Token common.Address `json:"token,omitempty"` // zero unless Kind == KindToken
}

// Native returns the native-currency asset reference
func Native() Asset {
	return Asset{Kind: KindNative}
}

// Token returns an asset reference for the given token contract
func Token(addr common.Address) Asset {
	return Asset{Kind: KindToken, Token: addr}
}

// Equal reports whether two asset references name the same asset:
// both native, or both the same token contract
func (a Asset) Equal(b Asset) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == KindNative {
		return true
	}
	return a.Token == b.Token
}

// IsNative reports whether the asset is the native currency
func (a Asset) IsNative() bool {
	return a.Kind == KindNative
}

func (a Asset) String() string {
	if a.Kind == KindNative {
		return "native"
	}
	return a.Token.Hex()
}

// key returns a stable map key for per-asset escrow bookkeeping
func (a Asset) key() string {
	return a.String()
}

// ParseAsset parses the wire form produced by String():
// "native" or a 0x-prefixed token address
func ParseAsset(s string) (Asset, error) {
	if s == "" || s == "native" {
		return Native(), nil
	}
	if !common.IsHexAddress(s) {
		return Asset{}, fmt.Errorf("invalid asset %q: want \"native\" or hex address", s)
	}
	return Token(common.HexToAddress(s)), nil
}

// MarshalJSON encodes the asset in its wire form
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes either the wire form or the legacy struct form
func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParseAsset(s)
		if perr != nil {
			return perr
		}
		*a = parsed
		return nil
	}
	type raw Asset
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*a = Asset(r)
	return nil
}
