package lending

import (
	"math/big"

	"nftlend/crypto"
)

// Repay settles an active loan directly from the borrower's balance. The
// borrower pays principal plus interest accrued to now; the collateral returns
// to the borrower and the loan transitions to Repaid. Repayment is rejected
// once the loan is strictly past due.
func (e *Engine) Repay(caller crypto.Address, loanID [32]byte) (err error) {
	done, err := e.begin("repay")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	loan, now, err := e.repayableLoan(caller, loanID)
	if err != nil {
		return err
	}

	interest := interestOn(loan, now)
	payment := new(big.Int).Add(cloneBigInt(loan.Principal), interest)
	if err = e.custody.TransferFungible(loan.Currency, loan.Borrower, loan.Lender, payment); err != nil {
		return err
	}
	if err = e.settleRepaid(loan, interest, loan.Borrower); err != nil {
		return err
	}
	e.metrics.ObserveSettlement("direct")
	e.emit(NewLoanRepaidEvent(loan, payment, "direct"))
	return nil
}

// ClaimAndRepay settles an active loan using income accrued by the collateral
// in the yield service, with the borrower covering any shortfall. Requires the
// collateral to have been enrolled when the loan was created. Unlike direct
// repayment this path carries no due-time cutoff: it stays open until the
// lender claims the collateral, and accrual is already capped at the full
// term.
func (e *Engine) ClaimAndRepay(caller crypto.Address, loanID [32]byte) (err error) {
	done, err := e.begin("claimAndRepay")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	if e.yield == nil {
		return errNilYield
	}
	loan, err := e.borrowerLoan(caller, loanID)
	if err != nil {
		return err
	}
	if !loan.YieldEnrolled {
		return errYieldNotEnrolled
	}
	now := e.now()

	interest := interestOn(loan, now)
	owed := new(big.Int).Add(cloneBigInt(loan.Principal), interest)

	if err = e.yield.Claim(loan.YieldAssetID, loan.Currency); err != nil {
		return err
	}
	available, err := e.yield.Balance(loan.YieldAssetID, loan.Currency)
	if err != nil {
		return err
	}
	if available == nil {
		available = big.NewInt(0)
	}

	fromYield := minBigInt(available, owed)
	if fromYield.Sign() > 0 {
		if err = e.yield.Withdraw(loan.YieldAssetID, loan.Currency, loan.Lender, fromYield); err != nil {
			return err
		}
	}
	if shortfall := new(big.Int).Sub(owed, fromYield); shortfall.Sign() > 0 {
		if err = e.custody.TransferFungible(loan.Currency, loan.Borrower, loan.Lender, shortfall); err != nil {
			return err
		}
	}
	if err = e.settleRepaid(loan, interest, loan.Borrower); err != nil {
		return err
	}
	e.metrics.ObserveSettlement("yield")
	e.emit(NewLoanRepaidEvent(loan, owed, "yield"))
	return nil
}

// ListCollateralForSale opens a sale listing for the loan's collateral. The
// asking price must cover the maximum possible debt (principal plus full-term
// interest) so the lender is made whole regardless of when the sale lands. A
// loan carries at most one active listing.
func (e *Engine) ListCollateralForSale(caller crypto.Address, loanID [32]byte, price *big.Int) (listing *SaleListing, err error) {
	done, err := e.begin("listCollateralForSale")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	loan, _, err := e.repayableLoan(caller, loanID)
	if err != nil {
		return nil, err
	}
	if existing, ok := e.state.ListingGet(loan.ID); ok && existing.Active {
		return nil, errListingActive
	}
	if price == nil || price.Sign() <= 0 {
		return nil, errInvalidPrincipal
	}
	if price.Cmp(maxDebt(loan)) < 0 {
		return nil, errPriceBelowDebt
	}

	listing = &SaleListing{
		LoanID:     loan.ID,
		Seller:     loan.Borrower,
		Collateral: loan.Collateral.Clone(),
		Currency:   loan.Currency,
		Price:      cloneBigInt(price),
		CreatedAt:  e.now(),
		Active:     true,
	}
	if err = e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	if e.market != nil {
		e.market.Listed(listing.Clone())
	}
	e.emit(NewListingCreatedEvent(listing))
	return listing.Clone(), nil
}

// CancelCollateralSale withdraws an active listing. Only the borrower who
// opened it may cancel.
func (e *Engine) CancelCollateralSale(caller crypto.Address, loanID [32]byte) (err error) {
	done, err := e.begin("cancelCollateralSale")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	listing, ok := e.state.ListingGet(loanID)
	if !ok {
		return errListingNotFound
	}
	if !listing.Seller.Equal(caller) {
		return errNotBorrower
	}
	if !listing.Active {
		return errListingInactive
	}
	listing.Active = false
	if err = e.state.ListingPut(listing); err != nil {
		return err
	}
	if e.market != nil {
		e.market.Cancelled(listing.Clone())
	}
	e.emit(NewListingCancelledEvent(listing))
	return nil
}

// BuyCollateralAndRepay executes a listed sale: the buyer pays the listing
// price, the lender receives the debt owed as of now, the borrower keeps the
// surplus, and the collateral transfers from the vault to the buyer. The loan
// transitions to Repaid.
func (e *Engine) BuyCollateralAndRepay(buyer crypto.Address, loanID [32]byte, payment *big.Int) (err error) {
	done, err := e.begin("buyCollateralAndRepay")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	listing, ok := e.state.ListingGet(loanID)
	if !ok {
		return errListingNotFound
	}
	if !listing.Active {
		return errListingInactive
	}
	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return errLoanNotFound
	}
	if loan.Status != LoanActive {
		return errLoanNotActive
	}
	now := e.now()
	if now > loan.DueTime {
		return errLoanPastDue
	}
	if payment == nil || payment.Cmp(listing.Price) != 0 {
		return errPaymentMismatch
	}

	interest := interestOn(loan, now)
	owed := new(big.Int).Add(cloneBigInt(loan.Principal), interest)
	surplus := new(big.Int).Sub(cloneBigInt(listing.Price), owed)

	if err = e.custody.TransferFungible(loan.Currency, buyer, loan.Lender, owed); err != nil {
		return err
	}
	if surplus.Sign() > 0 {
		if err = e.custody.TransferFungible(loan.Currency, buyer, loan.Borrower, surplus); err != nil {
			return err
		}
	}

	listing.Active = false
	if err = e.state.ListingPut(listing); err != nil {
		return err
	}

	loan.Status = LoanRepaid
	loan.AccruedInterest = interest
	if err = e.state.LoanPut(loan); err != nil {
		return err
	}
	if err = e.custody.TransferUnique(loan.Collateral, e.vault, buyer); err != nil {
		return err
	}
	if e.market != nil {
		e.market.Sold(listing.Clone(), buyer)
	}
	e.metrics.ObserveSettlement("sale")
	e.emit(NewListingSoldEvent(listing, buyer))
	e.emit(NewLoanRepaidEvent(loan, owed, "sale"))
	return nil
}

// borrowerLoan loads the loan and checks that it is still active and that the
// caller is its borrower.
func (e *Engine) borrowerLoan(caller crypto.Address, loanID [32]byte) (*Loan, error) {
	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return nil, errLoanNotFound
	}
	if loan.Status != LoanActive {
		return nil, errLoanNotActive
	}
	if !loan.Borrower.Equal(caller) {
		return nil, errNotBorrower
	}
	return loan, nil
}

// repayableLoan additionally requires the loan to be within term.
func (e *Engine) repayableLoan(caller crypto.Address, loanID [32]byte) (*Loan, int64, error) {
	loan, err := e.borrowerLoan(caller, loanID)
	if err != nil {
		return nil, 0, err
	}
	now := e.now()
	if now > loan.DueTime {
		return nil, 0, errLoanPastDue
	}
	return loan, now, nil
}

// settleRepaid finalizes a repaid loan: the accrued interest freezes, any
// outstanding listing retires, and the collateral returns to the recipient.
func (e *Engine) settleRepaid(loan *Loan, interest *big.Int, collateralTo crypto.Address) error {
	if err := e.retireListing(loan); err != nil {
		return err
	}
	loan.Status = LoanRepaid
	loan.AccruedInterest = cloneBigInt(interest)
	if err := e.state.LoanPut(loan); err != nil {
		return err
	}
	return e.custody.TransferUnique(loan.Collateral, e.vault, collateralTo)
}
