package lending

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nftlend/core/types"
	"nftlend/crypto"
)

// Event types emitted by the lending engine.
const (
	EventTypeOfferCreated          = "lending.offer.created"
	EventTypeOfferCancelled        = "lending.offer.cancelled"
	EventTypeOfferAccepted         = "lending.offer.accepted"
	EventTypeRequestCreated        = "lending.request.created"
	EventTypeRequestCancelled      = "lending.request.cancelled"
	EventTypeRequestAccepted       = "lending.request.accepted"
	EventTypeLoanCreated           = "lending.loan.created"
	EventTypeLoanRepaid            = "lending.loan.repaid"
	EventTypeLoanDefaulted         = "lending.loan.defaulted"
	EventTypeLoanRefinanced        = "lending.loan.refinanced"
	EventTypeRenegotiationProposed = "lending.renegotiation.proposed"
	EventTypeRenegotiationAccepted = "lending.renegotiation.accepted"
	EventTypeListingCreated        = "lending.listing.created"
	EventTypeListingCancelled      = "lending.listing.cancelled"
	EventTypeListingSold           = "lending.listing.sold"
)

func idAttr(id [32]byte) string { return hex.EncodeToString(id[:]) }

func addrAttr(addr crypto.Address) string { return addr.String() }

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewOfferCreatedEvent reports a freshly registered offer.
func NewOfferCreatedEvent(offer *Offer) *types.Event {
	if offer == nil {
		return nil
	}
	attrs := map[string]string{
		"offerId":   idAttr(offer.ID),
		"lender":    addrAttr(offer.Lender),
		"currency":  offer.Currency,
		"principal": amountAttr(offer.Principal),
		"aprBps":    strconv.FormatUint(offer.APRBps, 10),
		"duration":  strconv.FormatInt(offer.Duration, 10),
		"expiry":    strconv.FormatInt(offer.Expiry, 10),
		"feeBps":    strconv.FormatUint(offer.FeeBps, 10),
	}
	if offer.Kind == OfferCollection {
		attrs["kind"] = "collection"
		attrs["collection"] = addrAttr(offer.Collateral.Collection)
		attrs["capacity"] = amountAttr(offer.TotalCapacity)
		attrs["maxPerDraw"] = amountAttr(offer.MaxPerDraw)
	} else {
		attrs["kind"] = "standard"
		attrs["collateral"] = offer.Collateral.Key()
	}
	return &types.Event{Type: EventTypeOfferCreated, Attributes: attrs}
}

// NewOfferCancelledEvent reports an offer withdrawn by its lender.
func NewOfferCancelledEvent(offer *Offer) *types.Event {
	if offer == nil {
		return nil
	}
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: map[string]string{
		"offerId": idAttr(offer.ID),
		"lender":  addrAttr(offer.Lender),
	}}
}

// NewOfferAcceptedEvent reports an offer drawn into a loan.
func NewOfferAcceptedEvent(offer *Offer, loan *Loan) *types.Event {
	if offer == nil || loan == nil {
		return nil
	}
	return &types.Event{Type: EventTypeOfferAccepted, Attributes: map[string]string{
		"offerId":   idAttr(offer.ID),
		"loanId":    idAttr(loan.ID),
		"borrower":  addrAttr(loan.Borrower),
		"lender":    addrAttr(loan.Lender),
		"principal": amountAttr(loan.Principal),
	}}
}

// NewRequestCreatedEvent reports a freshly registered request.
func NewRequestCreatedEvent(request *Request) *types.Event {
	if request == nil {
		return nil
	}
	return &types.Event{Type: EventTypeRequestCreated, Attributes: map[string]string{
		"requestId":  idAttr(request.ID),
		"borrower":   addrAttr(request.Borrower),
		"collateral": request.Collateral.Key(),
		"currency":   request.Currency,
		"principal":  amountAttr(request.Principal),
		"aprBps":     strconv.FormatUint(request.APRBps, 10),
		"duration":   strconv.FormatInt(request.Duration, 10),
		"expiry":     strconv.FormatInt(request.Expiry, 10),
	}}
}

// NewRequestCancelledEvent reports a request withdrawn by its borrower.
func NewRequestCancelledEvent(request *Request) *types.Event {
	if request == nil {
		return nil
	}
	return &types.Event{Type: EventTypeRequestCancelled, Attributes: map[string]string{
		"requestId": idAttr(request.ID),
		"borrower":  addrAttr(request.Borrower),
	}}
}

// NewRequestAcceptedEvent reports a request filled into a loan.
func NewRequestAcceptedEvent(request *Request, loan *Loan) *types.Event {
	if request == nil || loan == nil {
		return nil
	}
	return &types.Event{Type: EventTypeRequestAccepted, Attributes: map[string]string{
		"requestId": idAttr(request.ID),
		"loanId":    idAttr(loan.ID),
		"borrower":  addrAttr(loan.Borrower),
		"lender":    addrAttr(loan.Lender),
		"principal": amountAttr(loan.Principal),
	}}
}

// NewLoanCreatedEvent reports a newly activated loan.
func NewLoanCreatedEvent(loan *Loan) *types.Event {
	if loan == nil {
		return nil
	}
	return &types.Event{Type: EventTypeLoanCreated, Attributes: map[string]string{
		"loanId":     idAttr(loan.ID),
		"originId":   idAttr(loan.OriginID),
		"borrower":   addrAttr(loan.Borrower),
		"lender":     addrAttr(loan.Lender),
		"collateral": loan.Collateral.Key(),
		"currency":   loan.Currency,
		"principal":  amountAttr(loan.Principal),
		"aprBps":     strconv.FormatUint(loan.APRBps, 10),
		"feePaid":    amountAttr(loan.FeePaid),
		"startTime":  strconv.FormatInt(loan.StartTime, 10),
		"dueTime":    strconv.FormatInt(loan.DueTime, 10),
		"yield":      strconv.FormatBool(loan.YieldEnrolled),
	}}
}

// NewLoanRepaidEvent reports a loan settled in the lender's favour through
// one of the repayment paths.
func NewLoanRepaidEvent(loan *Loan, payment *big.Int, path string) *types.Event {
	if loan == nil {
		return nil
	}
	return &types.Event{Type: EventTypeLoanRepaid, Attributes: map[string]string{
		"loanId":   idAttr(loan.ID),
		"borrower": addrAttr(loan.Borrower),
		"lender":   addrAttr(loan.Lender),
		"payment":  amountAttr(payment),
		"interest": amountAttr(loan.AccruedInterest),
		"path":     path,
	}}
}

// NewLoanDefaultedEvent reports a loan defaulted and its collateral claimed.
func NewLoanDefaultedEvent(loan *Loan) *types.Event {
	if loan == nil {
		return nil
	}
	return &types.Event{Type: EventTypeLoanDefaulted, Attributes: map[string]string{
		"loanId":     idAttr(loan.ID),
		"borrower":   addrAttr(loan.Borrower),
		"lender":     addrAttr(loan.Lender),
		"collateral": loan.Collateral.Key(),
		"interest":   amountAttr(loan.AccruedInterest),
	}}
}

// NewLoanRefinancedEvent reports an old loan retired in favour of a new one.
func NewLoanRefinancedEvent(retired, replacement *Loan) *types.Event {
	if retired == nil || replacement == nil {
		return nil
	}
	return &types.Event{Type: EventTypeLoanRefinanced, Attributes: map[string]string{
		"retiredLoanId": idAttr(retired.ID),
		"loanId":        idAttr(replacement.ID),
		"borrower":      addrAttr(replacement.Borrower),
		"lender":        addrAttr(replacement.Lender),
		"principal":     amountAttr(replacement.Principal),
		"aprBps":        strconv.FormatUint(replacement.APRBps, 10),
		"dueTime":       strconv.FormatInt(replacement.DueTime, 10),
	}}
}

// NewRenegotiationProposedEvent reports a lender's proposed amendment.
func NewRenegotiationProposedEvent(proposal *RenegotiationProposal) *types.Event {
	if proposal == nil {
		return nil
	}
	return &types.Event{Type: EventTypeRenegotiationProposed, Attributes: map[string]string{
		"proposalId": idAttr(proposal.ID),
		"loanId":     idAttr(proposal.LoanID),
		"proposer":   addrAttr(proposal.Proposer),
		"borrower":   addrAttr(proposal.Borrower),
		"principal":  amountAttr(proposal.Principal),
		"aprBps":     strconv.FormatUint(proposal.APRBps, 10),
		"duration":   strconv.FormatInt(proposal.Duration, 10),
	}}
}

// NewRenegotiationAcceptedEvent reports a proposal applied to its loan.
func NewRenegotiationAcceptedEvent(proposal *RenegotiationProposal, loan *Loan) *types.Event {
	if proposal == nil || loan == nil {
		return nil
	}
	return &types.Event{Type: EventTypeRenegotiationAccepted, Attributes: map[string]string{
		"proposalId": idAttr(proposal.ID),
		"loanId":     idAttr(loan.ID),
		"principal":  amountAttr(loan.Principal),
		"aprBps":     strconv.FormatUint(loan.APRBps, 10),
		"dueTime":    strconv.FormatInt(loan.DueTime, 10),
	}}
}

// NewListingCreatedEvent reports collateral offered for sale-assisted
// repayment.
func NewListingCreatedEvent(listing *SaleListing) *types.Event {
	if listing == nil {
		return nil
	}
	return &types.Event{Type: EventTypeListingCreated, Attributes: map[string]string{
		"loanId":     idAttr(listing.LoanID),
		"seller":     addrAttr(listing.Seller),
		"collateral": listing.Collateral.Key(),
		"currency":   listing.Currency,
		"price":      amountAttr(listing.Price),
	}}
}

// NewListingCancelledEvent reports a listing withdrawn or invalidated.
func NewListingCancelledEvent(listing *SaleListing) *types.Event {
	if listing == nil {
		return nil
	}
	return &types.Event{Type: EventTypeListingCancelled, Attributes: map[string]string{
		"loanId": idAttr(listing.LoanID),
		"seller": addrAttr(listing.Seller),
	}}
}

// NewListingSoldEvent reports a completed collateral sale.
func NewListingSoldEvent(listing *SaleListing, buyer crypto.Address) *types.Event {
	if listing == nil {
		return nil
	}
	return &types.Event{Type: EventTypeListingSold, Attributes: map[string]string{
		"loanId": idAttr(listing.LoanID),
		"seller": addrAttr(listing.Seller),
		"buyer":  addrAttr(buyer),
		"price":  amountAttr(listing.Price),
	}}
}
