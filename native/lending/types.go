package lending

import (
	"math/big"

	"nftlend/core/types"
	"nftlend/crypto"
)

// OfferKind distinguishes single-asset offers from collection-wide
// commitments.
type OfferKind uint8

const (
	// OfferStandard pins a specific collateral asset.
	OfferStandard OfferKind = iota
	// OfferCollection commits capacity against any eligible asset in a
	// whitelisted collection.
	OfferCollection
)

// Valid reports whether the kind is within the supported range.
func (k OfferKind) Valid() bool {
	switch k {
	case OfferStandard, OfferCollection:
		return true
	default:
		return false
	}
}

// LoanStatus represents the lifecycle states of a loan. Transitions are
// monotone: once a loan leaves Active it never returns.
type LoanStatus uint8

const (
	LoanActive LoanStatus = iota + 1
	LoanRepaid
	LoanDefaulted
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanRepaid, LoanDefaulted:
		return true
	default:
		return false
	}
}

// Offer is a lender-originated commitment of principal against collateral.
// Offers are never deleted; cancellation and acceptance flip Active.
type Offer struct {
	ID         [32]byte
	Lender     crypto.Address
	Kind       OfferKind
	Collateral types.CollateralRef
	Currency   string
	Principal  *big.Int
	APRBps     uint64
	Duration   int64
	Expiry     int64
	FeeBps     uint64
	// Collection terms; zero values for standard offers.
	TotalCapacity *big.Int
	MaxPerDraw    *big.Int
	MinDraws      uint64
	AmountDrawn   *big.Int
	CreatedAt     int64
	Active        bool
}

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Collateral = o.Collateral.Clone()
	clone.Principal = cloneBigInt(o.Principal)
	if o.TotalCapacity != nil {
		clone.TotalCapacity = new(big.Int).Set(o.TotalCapacity)
	}
	if o.MaxPerDraw != nil {
		clone.MaxPerDraw = new(big.Int).Set(o.MaxPerDraw)
	}
	if o.AmountDrawn != nil {
		clone.AmountDrawn = new(big.Int).Set(o.AmountDrawn)
	}
	return &clone
}

// remainingCapacity returns the undrawn capacity of a collection offer.
func (o *Offer) remainingCapacity() *big.Int {
	if o == nil || o.Kind != OfferCollection {
		return big.NewInt(0)
	}
	remaining := new(big.Int).Set(o.TotalCapacity)
	if o.AmountDrawn != nil {
		remaining.Sub(remaining, o.AmountDrawn)
	}
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// Request is a borrower-originated proposal for loan terms, the mirror image
// of a standard offer.
type Request struct {
	ID         [32]byte
	Borrower   crypto.Address
	Collateral types.CollateralRef
	Currency   string
	Principal  *big.Int
	APRBps     uint64
	Duration   int64
	Expiry     int64
	CreatedAt  int64
	Active     bool
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Collateral = r.Collateral.Clone()
	clone.Principal = cloneBigInt(r.Principal)
	return &clone
}

// Loan is the authoritative record of a credit extension secured by a
// collateral asset held in the protocol vault.
type Loan struct {
	ID         [32]byte
	OriginID   [32]byte
	Borrower   crypto.Address
	Lender     crypto.Address
	Collateral types.CollateralRef
	Currency   string
	Principal  *big.Int
	APRBps     uint64
	FeePaid    *big.Int
	StartTime  int64
	DueTime    int64
	// AccruedInterest is fixed at settlement; while the loan is active the
	// authoritative value comes from CalculateInterest.
	AccruedInterest *big.Int
	Status          LoanStatus
	YieldAssetID    [32]byte
	YieldEnrolled   bool
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Collateral = l.Collateral.Clone()
	clone.Principal = cloneBigInt(l.Principal)
	clone.FeePaid = cloneBigInt(l.FeePaid)
	clone.AccruedInterest = cloneBigInt(l.AccruedInterest)
	return &clone
}

// Term returns the full loan term in seconds.
func (l *Loan) Term() int64 {
	if l == nil {
		return 0
	}
	return l.DueTime - l.StartTime
}

// RenegotiationProposal is a lender-proposed amendment of an active loan's
// terms. A proposal is terminal once accepted.
type RenegotiationProposal struct {
	ID        [32]byte
	LoanID    [32]byte
	Proposer  crypto.Address
	Borrower  crypto.Address
	Principal *big.Int
	APRBps    uint64
	Duration  int64
	Accepted  bool
	CreatedAt int64
}

// Clone returns a deep copy of the proposal.
func (p *RenegotiationProposal) Clone() *RenegotiationProposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Principal = cloneBigInt(p.Principal)
	return &clone
}

// SaleListing advertises a loan's collateral for sale-assisted repayment. It
// is keyed by loan id; a loan can carry at most one active listing.
type SaleListing struct {
	LoanID     [32]byte
	Seller     crypto.Address
	Collateral types.CollateralRef
	Currency   string
	Price      *big.Int
	CreatedAt  int64
	Active     bool
}

// Clone returns a deep copy of the listing.
func (s *SaleListing) Clone() *SaleListing {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Collateral = s.Collateral.Clone()
	clone.Price = cloneBigInt(s.Price)
	return &clone
}
