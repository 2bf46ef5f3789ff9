package types

import (
	"encoding/hex"
	"math/big"

	"nftlend/crypto"
)

// CollateralRef identifies a unique collateral asset by its collection address
// and token number. A reference with a nil TokenID denotes a whole collection
// rather than a specific asset.
type CollateralRef struct {
	Collection crypto.Address
	TokenID    *big.Int
}

// HasToken reports whether the reference pins a specific asset.
func (c CollateralRef) HasToken() bool {
	return c.TokenID != nil
}

// Key returns a stable map key for the referenced asset.
func (c CollateralRef) Key() string {
	key := hex.EncodeToString(c.Collection.Bytes())
	if c.TokenID != nil {
		key += ":" + c.TokenID.String()
	}
	return key
}

// Clone returns a deep copy of the reference.
func (c CollateralRef) Clone() CollateralRef {
	clone := CollateralRef{Collection: c.Collection}
	if c.TokenID != nil {
		clone.TokenID = new(big.Int).Set(c.TokenID)
	}
	return clone
}

// Equal reports whether two references point at the same asset.
func (c CollateralRef) Equal(other CollateralRef) bool {
	if !c.Collection.Equal(other.Collection) {
		return false
	}
	if (c.TokenID == nil) != (other.TokenID == nil) {
		return false
	}
	if c.TokenID == nil {
		return true
	}
	return c.TokenID.Cmp(other.TokenID) == 0
}
