package lending

import "errors"

// Wiring errors.
var (
	errNilState    = errors.New("loan engine: state not configured")
	errNilCustody  = errors.New("loan engine: custody service not configured")
	errNilCurrency = errors.New("loan engine: currency registry not configured")
	errNilCollect  = errors.New("loan engine: collection registry not configured")
	errNilYield    = errors.New("loan engine: yield service not configured")
)

// Validation errors.
var (
	errUnsupportedCurrency = errors.New("loan engine: unsupported currency")
	errCollectionNotListed = errors.New("loan engine: collection not whitelisted")
	errInvalidPrincipal    = errors.New("loan engine: principal must be positive")
	errInvalidDuration     = errors.New("loan engine: duration must be positive")
	errExpiryInPast        = errors.New("loan engine: expiry must be in the future")
	errInvalidOfferKind    = errors.New("loan engine: invalid offer kind")
	errInvalidCapacity     = errors.New("loan engine: collection capacity must be positive")
	errDrawExceedsCap      = errors.New("loan engine: draw exceeds per-draw maximum")
	errCapacityExhausted   = errors.New("loan engine: collection capacity exhausted")
	errCapacityUnderMin    = errors.New("loan engine: capacity below minimum draw commitment")
	errFeeAboveCap         = errors.New("loan engine: origination fee above cap")
	errAPRAboveCap         = errors.New("loan engine: apr above cap")
	errDurationAboveCap    = errors.New("loan engine: duration above cap")
	errPriceBelowDebt      = errors.New("loan engine: asking price below maximum possible debt")
	errCollateralMismatch  = errors.New("loan engine: collateral does not match offer")
	errCollateralRequired  = errors.New("loan engine: collateral reference must pin a token")
)

// Authorization errors.
var (
	errNotOfferOwner   = errors.New("loan engine: caller is not the offer lender")
	errNotRequestOwner = errors.New("loan engine: caller is not the request borrower")
	errNotBorrower     = errors.New("loan engine: caller is not the loan borrower")
	errNotLender       = errors.New("loan engine: caller is not the loan lender")
	errSelfDeal        = errors.New("loan engine: lender and borrower must differ")
	errNotProposee     = errors.New("loan engine: caller is not the proposal borrower")
)

// State errors.
var (
	errOfferNotFound    = errors.New("loan engine: offer not found")
	errOfferInactive    = errors.New("loan engine: offer not active")
	errOfferExpired     = errors.New("loan engine: offer expired")
	errRequestNotFound  = errors.New("loan engine: request not found")
	errRequestInactive  = errors.New("loan engine: request not active")
	errRequestExpired   = errors.New("loan engine: request expired")
	errLoanNotFound     = errors.New("loan engine: loan not found")
	errLoanNotActive    = errors.New("loan engine: loan not active")
	errLoanPastDue      = errors.New("loan engine: loan past due")
	errLoanNotPastDue   = errors.New("loan engine: loan not yet defaulted")
	errProposalNotFound = errors.New("loan engine: proposal not found")
	errProposalActioned = errors.New("loan engine: proposal already accepted")
	errListingNotFound  = errors.New("loan engine: listing not found")
	errListingInactive  = errors.New("loan engine: listing not active")
	errListingActive    = errors.New("loan engine: collateral already listed")
	errYieldNotEnrolled = errors.New("loan engine: collateral not enrolled with yield service")
)

// Consistency errors.
var (
	errPaymentMismatch   = errors.New("loan engine: payment does not match listing price")
	errCollateralNotHeld = errors.New("loan engine: borrower does not hold the collateral")
	errCollateralLocked  = errors.New("loan engine: transfer rights not granted to the vault")
)
