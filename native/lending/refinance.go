package lending

import (
	"math/big"

	"nftlend/crypto"
)

// RefinanceTerms carries the replacement terms a new lender offers when
// paying off an existing loan.
type RefinanceTerms struct {
	Principal *big.Int
	APRBps    uint64
	Duration  int64
	FeeBps    uint64
}

// Refinance replaces an active loan with a new one funded by a new lender.
// The new lender pays the outgoing lender the full debt owed as of now; any
// excess of the new principal over that payoff goes to the borrower, less the
// origination fee charged on the excess. The collateral never leaves the
// vault. Refinancing must not worsen the borrower's position: the new
// principal covers at least the old, and the new term is at least as long as
// the old loan's full term.
func (e *Engine) Refinance(newLender crypto.Address, loanID [32]byte, terms RefinanceTerms) (loan *Loan, err error) {
	done, err := e.begin("refinance")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	current, ok := e.state.LoanGet(loanID)
	if !ok {
		return nil, errLoanNotFound
	}
	if current.Status != LoanActive {
		return nil, errLoanNotActive
	}
	now := e.now()
	if now > current.DueTime {
		return nil, errLoanPastDue
	}
	if newLender.Equal(current.Borrower) {
		return nil, errSelfDeal
	}
	if terms.Principal == nil || terms.Principal.Cmp(current.Principal) < 0 {
		return nil, errInvalidPrincipal
	}
	if terms.Duration < current.Term() {
		return nil, errInvalidDuration
	}
	if terms.FeeBps > e.params.OriginationFeeCapBps {
		return nil, errFeeAboveCap
	}
	if e.params.MaxAPRBps > 0 && terms.APRBps > e.params.MaxAPRBps {
		return nil, errAPRAboveCap
	}
	if e.params.MaxDuration > 0 && terms.Duration > e.params.MaxDuration {
		return nil, errDurationAboveCap
	}

	interest := interestOn(current, now)
	payoff := new(big.Int).Add(cloneBigInt(current.Principal), interest)
	if err = e.custody.TransferFungible(current.Currency, newLender, current.Lender, payoff); err != nil {
		return nil, err
	}

	principal := cloneBigInt(terms.Principal)
	fee := big.NewInt(0)
	if excess := new(big.Int).Sub(principal, payoff); excess.Sign() > 0 {
		fee = bpsShare(excess, terms.FeeBps)
		if toBorrower := new(big.Int).Sub(excess, fee); toBorrower.Sign() > 0 {
			if err = e.custody.TransferFungible(current.Currency, newLender, current.Borrower, toBorrower); err != nil {
				return nil, err
			}
		}
	}

	if err = e.retireListing(current); err != nil {
		return nil, err
	}
	current.Status = LoanRepaid
	current.AccruedInterest = interest
	if err = e.state.LoanPut(current); err != nil {
		return nil, err
	}

	loan = &Loan{
		ID:              e.nextID(current.Borrower, current.Collateral),
		OriginID:        current.ID,
		Borrower:        current.Borrower,
		Lender:          newLender,
		Collateral:      current.Collateral.Clone(),
		Currency:        current.Currency,
		Principal:       principal,
		APRBps:          terms.APRBps,
		FeePaid:         fee,
		StartTime:       now,
		DueTime:         now + terms.Duration,
		AccruedInterest: big.NewInt(0),
		Status:          LoanActive,
		YieldAssetID:    current.YieldAssetID,
		YieldEnrolled:   current.YieldEnrolled,
	}
	if err = e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	e.metrics.ObserveSettlement("refinance")
	e.emit(NewLoanRefinancedEvent(current, loan))
	return loan.Clone(), nil
}

// ProposalTerms carries the amended terms a lender proposes for an active
// loan.
type ProposalTerms struct {
	Principal *big.Int
	APRBps    uint64
	Duration  int64
}

// ProposeRenegotiation records a lender-proposed amendment of an active loan.
// The proposal binds nobody until the borrower accepts it; the lender may
// propose principal relief as well as stricter terms.
func (e *Engine) ProposeRenegotiation(caller crypto.Address, loanID [32]byte, terms ProposalTerms) (proposal *RenegotiationProposal, err error) {
	done, err := e.begin("proposeRenegotiation")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return nil, errLoanNotFound
	}
	if loan.Status != LoanActive {
		return nil, errLoanNotActive
	}
	if !loan.Lender.Equal(caller) {
		return nil, errNotLender
	}
	if terms.Principal == nil || terms.Principal.Sign() <= 0 {
		return nil, errInvalidPrincipal
	}
	if terms.Duration <= 0 {
		return nil, errInvalidDuration
	}
	if e.params.MaxAPRBps > 0 && terms.APRBps > e.params.MaxAPRBps {
		return nil, errAPRAboveCap
	}
	if e.params.MaxDuration > 0 && terms.Duration > e.params.MaxDuration {
		return nil, errDurationAboveCap
	}

	proposal = &RenegotiationProposal{
		ID:        e.nextID(caller, loan.Collateral),
		LoanID:    loan.ID,
		Proposer:  caller,
		Borrower:  loan.Borrower,
		Principal: cloneBigInt(terms.Principal),
		APRBps:    terms.APRBps,
		Duration:  terms.Duration,
		CreatedAt: e.now(),
	}
	if err = e.state.ProposalPut(proposal); err != nil {
		return nil, err
	}
	e.emit(NewRenegotiationProposedEvent(proposal))
	return proposal.Clone(), nil
}

// AcceptRenegotiation applies a proposal to its loan. Only the borrower may
// accept, and only once: an accepted proposal is terminal. The amended terms
// apply from the loan's original start, so the new due time is the original
// start plus the proposed duration, and any principal difference settles
// immediately between the parties.
func (e *Engine) AcceptRenegotiation(caller crypto.Address, proposalID [32]byte) (err error) {
	done, err := e.begin("acceptRenegotiation")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	proposal, ok := e.state.ProposalGet(proposalID)
	if !ok {
		return errProposalNotFound
	}
	if proposal.Accepted {
		return errProposalActioned
	}
	if !proposal.Borrower.Equal(caller) {
		return errNotProposee
	}
	loan, ok := e.state.LoanGet(proposal.LoanID)
	if !ok {
		return errLoanNotFound
	}
	if loan.Status != LoanActive {
		return errLoanNotActive
	}
	newDue := loan.StartTime + proposal.Duration
	if newDue < e.now() {
		return errInvalidDuration
	}

	delta := new(big.Int).Sub(proposal.Principal, loan.Principal)
	switch {
	case delta.Sign() > 0:
		if err = e.custody.TransferFungible(loan.Currency, loan.Lender, loan.Borrower, delta); err != nil {
			return err
		}
	case delta.Sign() < 0:
		if err = e.custody.TransferFungible(loan.Currency, loan.Borrower, loan.Lender, new(big.Int).Neg(delta)); err != nil {
			return err
		}
	}

	loan.Principal = cloneBigInt(proposal.Principal)
	loan.APRBps = proposal.APRBps
	loan.DueTime = newDue
	if err = e.state.LoanPut(loan); err != nil {
		return err
	}
	proposal.Accepted = true
	if err = e.state.ProposalPut(proposal); err != nil {
		return err
	}
	e.emit(NewRenegotiationAcceptedEvent(proposal, loan))
	return nil
}
