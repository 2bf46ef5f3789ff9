package lending

import "math/big"

const secondsPerYear = 31_536_000

// Interest computes the simple interest owed on a loan as of a point in time:
//
//	principal × aprBps × elapsed / (10000 × secondsPerYear)
//
// with elapsed floored at zero and capped at the full term. Interest stops
// growing at the due time: default converts the relationship from
// interest-bearing to collateral-forfeit, so the accrual freezes at the
// boundary. All arithmetic is integer with truncating division.
func Interest(principal *big.Int, aprBps uint64, start, due, asOf int64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || aprBps == 0 {
		return big.NewInt(0)
	}
	if due <= start {
		return big.NewInt(0)
	}
	elapsed := asOf - start
	if elapsed <= 0 {
		return big.NewInt(0)
	}
	if term := due - start; elapsed > term {
		elapsed = term
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(aprBps))
	interest.Mul(interest, big.NewInt(elapsed))
	denominator := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	return interest.Quo(interest, denominator)
}

// interestOn computes the interest owed on the loan as of the given time.
func interestOn(loan *Loan, asOf int64) *big.Int {
	if loan == nil {
		return big.NewInt(0)
	}
	return Interest(loan.Principal, loan.APRBps, loan.StartTime, loan.DueTime, asOf)
}

// totalDue returns principal plus interest accrued as of the given time.
func totalDue(loan *Loan, asOf int64) *big.Int {
	if loan == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(cloneBigInt(loan.Principal), interestOn(loan, asOf))
}

// maxDebt returns the maximum possible future debt of the loan: principal plus
// interest through the full term. Sale listings must not undershoot this
// value or the lender could be worse off than waiting for default.
func maxDebt(loan *Loan) *big.Int {
	if loan == nil {
		return big.NewInt(0)
	}
	return totalDue(loan, loan.DueTime)
}
