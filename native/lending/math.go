package lending

import "math/big"

var basisPoints = big.NewInt(10_000)

// bpsShare returns amount × bps / 10000, truncated. Negative or nil amounts
// yield zero.
func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func minBigInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
