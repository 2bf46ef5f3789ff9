package lending

import (
	"encoding/binary"
	"math/big"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftlend/core/events"
	"nftlend/core/types"
	"nftlend/crypto"
	nativecommon "nftlend/native/common"
	"nftlend/observability/metrics"
)

const moduleName = "lending"

// CurrencyRegistry gates which currencies may denominate offers and requests.
type CurrencyRegistry interface {
	IsSupported(symbol string) bool
}

// CollectionRegistry gates which collateral collections are admissible.
type CollectionRegistry interface {
	IsWhitelisted(collection crypto.Address) bool
}

// CustodyService moves value between participants and the protocol vault.
// Transfers may invoke callback logic on the receiving party; the engine's
// reentrancy guard assumes nothing about the implementation.
type CustodyService interface {
	TransferFungible(currency string, from, to crypto.Address, amount *big.Int) error
	TransferUnique(ref types.CollateralRef, from, to crypto.Address) error
	OwnerOf(ref types.CollateralRef) (crypto.Address, bool)
	IsApproved(ref types.CollateralRef, operator crypto.Address) bool
}

// YieldService exposes income attributable to enrolled collateral assets.
type YieldService interface {
	Claim(assetID [32]byte, currency string) error
	Balance(assetID [32]byte, currency string) (*big.Int, error)
	Withdraw(assetID [32]byte, currency string, recipient crypto.Address, amount *big.Int) error
}

// AssetRegistry resolves collateral references to yield-service asset
// identifiers. Absence is explicit: ResolveAssetID reports ok=false rather
// than returning a zero id.
type AssetRegistry interface {
	ResolveAssetID(ref types.CollateralRef) ([32]byte, bool)
	IsRegistered(assetID [32]byte) bool
}

// Marketplace mirrors the engine's sale listings so external venues can
// surface them. All methods are notifications; the engine remains the source
// of truth for listing state.
type Marketplace interface {
	Listed(listing *SaleListing)
	Sold(listing *SaleListing, buyer crypto.Address)
	Cancelled(listing *SaleListing)
}

type engineState interface {
	NextSequence() uint64
	OfferPut(*Offer) error
	OfferGet(id [32]byte) (*Offer, bool)
	RequestPut(*Request) error
	RequestGet(id [32]byte) (*Request, bool)
	LoanPut(*Loan) error
	LoanGet(id [32]byte) (*Loan, bool)
	ProposalPut(*RenegotiationProposal) error
	ProposalGet(id [32]byte) (*RenegotiationProposal, bool)
	ListingPut(*SaleListing) error
	ListingGet(loanID [32]byte) (*SaleListing, bool)
}

type loanEvent struct {
	evt *types.Event
}

func (e loanEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e loanEvent) Event() *types.Event { return e.evt }

// Engine is the loan lifecycle state machine. It owns offers, requests, loans,
// renegotiation proposals and sale listings, and delegates custody, yield and
// marketplace concerns to injected collaborators.
type Engine struct {
	state       engineState
	custody     CustodyService
	currencies  CurrencyRegistry
	collections CollectionRegistry
	yield       YieldService
	assets      AssetRegistry
	market      Marketplace
	emitter     events.Emitter
	guard       *nativecommon.ReentrancyGuard
	pauses      nativecommon.PauseView
	metrics     *metrics.LendingMetrics
	params      Params
	vault       crypto.Address
	nowFn       func() int64
}

// NewEngine constructs a lending engine holding collateral in the given vault
// address.
func NewEngine(vault crypto.Address, params Params) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		guard:   nativecommon.NewReentrancyGuard(),
		params:  params,
		vault:   vault,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the custody service used for all value transfers.
func (e *Engine) SetCustody(custody CustodyService) { e.custody = custody }

// SetRegistries configures the currency allow-list and collection whitelist.
func (e *Engine) SetRegistries(currencies CurrencyRegistry, collections CollectionRegistry) {
	e.currencies = currencies
	e.collections = collections
}

// SetYieldService configures the yield collaborators used by the
// yield-assisted repayment path.
func (e *Engine) SetYieldService(yield YieldService, assets AssetRegistry) {
	e.yield = yield
	e.assets = assets
}

// SetMarketplace configures the sale listing mirror. Passing nil disables
// notifications.
func (e *Engine) SetMarketplace(market Marketplace) { e.market = market }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetMetrics wires the prometheus instrumentation. Passing nil disables it.
func (e *Engine) SetMetrics(m *metrics.LendingMetrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(loanEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// begin acquires the engine-wide mutual-exclusion section and checks the
// pause switch. All mutating entry points share one section: a custody or
// marketplace callback that reenters any of them mid-operation fails with
// ErrReentrantCall, so an in-flight operation can never observe (or clobber)
// a settlement performed underneath it. The returned completion function
// releases the section and records the outcome under the entry point's name;
// it must be deferred with the operation's final error.
func (e *Engine) begin(op string) (func(error), error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.custody == nil {
		return nil, errNilCustody
	}
	release, err := e.guard.Enter(moduleName)
	if err != nil {
		e.metrics.ObserveReentrancyRejected()
		e.metrics.ObserveOperation(op, err)
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		release()
		e.metrics.ObserveOperation(op, err)
		return nil, err
	}
	m := e.metrics
	return func(opErr error) {
		release()
		m.ObserveOperation(op, opErr)
	}, nil
}

func (e *Engine) nextID(caller crypto.Address, ref types.CollateralRef) [32]byte {
	var seqBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], e.state.NextSequence())
	binary.BigEndian.PutUint64(tsBuf[:], uint64(e.now()))
	var tokenBytes []byte
	if ref.TokenID != nil {
		tokenBytes = ref.TokenID.Bytes()
	}
	return ethcrypto.Keccak256Hash(seqBuf[:], caller.Bytes(), tsBuf[:], ref.Collection.Bytes(), tokenBytes)
}

func normalizeCurrency(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// validateTerms applies the shared validation for newly created offers and
// requests.
func (e *Engine) validateTerms(currency string, principal *big.Int, aprBps uint64, duration, expiry int64) error {
	if e.currencies == nil {
		return errNilCurrency
	}
	if e.collections == nil {
		return errNilCollect
	}
	if !e.currencies.IsSupported(currency) {
		return errUnsupportedCurrency
	}
	if principal == nil || principal.Sign() <= 0 {
		return errInvalidPrincipal
	}
	if duration <= 0 {
		return errInvalidDuration
	}
	if expiry <= e.now() {
		return errExpiryInPast
	}
	if e.params.MaxAPRBps > 0 && aprBps > e.params.MaxAPRBps {
		return errAPRAboveCap
	}
	if e.params.MaxDuration > 0 && duration > e.params.MaxDuration {
		return errDurationAboveCap
	}
	return nil
}

// OfferTerms carries the caller-supplied parameters for a new loan offer.
type OfferTerms struct {
	Kind       OfferKind
	Collateral types.CollateralRef
	Currency   string
	Principal  *big.Int
	APRBps     uint64
	Duration   int64
	Expiry     int64
	FeeBps     uint64
	// Collection commitments only.
	TotalCapacity *big.Int
	MaxPerDraw    *big.Int
	MinDraws      uint64
}

// CreateOffer registers a lender-originated loan offer and returns the stored
// record.
func (e *Engine) CreateOffer(lender crypto.Address, terms OfferTerms) (offer *Offer, err error) {
	done, err := e.begin("createOffer")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	if !terms.Kind.Valid() {
		return nil, errInvalidOfferKind
	}
	if terms.FeeBps > e.params.OriginationFeeCapBps {
		return nil, errFeeAboveCap
	}
	currency := normalizeCurrency(terms.Currency)
	if e.collections == nil {
		return nil, errNilCollect
	}
	if !e.collections.IsWhitelisted(terms.Collateral.Collection) {
		return nil, errCollectionNotListed
	}

	principal := cloneBigInt(terms.Principal)
	record := &Offer{
		Lender:     lender,
		Kind:       terms.Kind,
		Collateral: terms.Collateral.Clone(),
		Currency:   currency,
		APRBps:     terms.APRBps,
		Duration:   terms.Duration,
		Expiry:     terms.Expiry,
		FeeBps:     terms.FeeBps,
		CreatedAt:  e.now(),
		Active:     true,
	}

	switch terms.Kind {
	case OfferStandard:
		if !terms.Collateral.HasToken() {
			return nil, errCollateralRequired
		}
		record.Principal = principal
	case OfferCollection:
		if terms.Collateral.HasToken() {
			return nil, errCollateralMismatch
		}
		capacity := cloneBigInt(terms.TotalCapacity)
		maxDraw := cloneBigInt(terms.MaxPerDraw)
		if capacity.Sign() <= 0 || maxDraw.Sign() <= 0 {
			return nil, errInvalidCapacity
		}
		if maxDraw.Cmp(capacity) > 0 {
			return nil, errDrawExceedsCap
		}
		if terms.MinDraws > 0 {
			committed := new(big.Int).Mul(maxDraw, new(big.Int).SetUint64(terms.MinDraws))
			if committed.Cmp(capacity) > 0 {
				return nil, errCapacityUnderMin
			}
		}
		record.Principal = capacity
		record.TotalCapacity = capacity
		record.MaxPerDraw = maxDraw
		record.MinDraws = terms.MinDraws
		record.AmountDrawn = big.NewInt(0)
	}

	if err = e.validateTerms(currency, record.Principal, terms.APRBps, terms.Duration, terms.Expiry); err != nil {
		return nil, err
	}

	record.ID = e.nextID(lender, record.Collateral)
	if err = e.state.OfferPut(record); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(record))
	return record.Clone(), nil
}

// CancelOffer deactivates an offer. Only the originating lender may cancel,
// and cancelling an already-inactive offer is a reported error.
func (e *Engine) CancelOffer(caller crypto.Address, offerID [32]byte) (err error) {
	done, err := e.begin("cancelOffer")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	offer, ok := e.state.OfferGet(offerID)
	if !ok {
		return errOfferNotFound
	}
	if !offer.Lender.Equal(caller) {
		return errNotOfferOwner
	}
	if err = e.deactivateOffer(offer); err != nil {
		return err
	}
	if err = e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(offer))
	return nil
}

// deactivateOffer flips an offer inactive. Deactivating an already-inactive
// offer is an error, never a silent no-op: the check is what protects against
// double-acceptance races.
func (e *Engine) deactivateOffer(offer *Offer) error {
	if offer == nil {
		return errOfferNotFound
	}
	if !offer.Active {
		return errOfferInactive
	}
	offer.Active = false
	return nil
}

// GetOffer returns the stored offer record.
func (e *Engine) GetOffer(offerID [32]byte) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, ok := e.state.OfferGet(offerID)
	if !ok {
		return nil, errOfferNotFound
	}
	return offer.Clone(), nil
}

// RequestTerms carries the caller-supplied parameters for a new loan request.
type RequestTerms struct {
	Collateral types.CollateralRef
	Currency   string
	Principal  *big.Int
	APRBps     uint64
	Duration   int64
	Expiry     int64
}

// CreateRequest registers a borrower-originated loan request and returns the
// stored record.
func (e *Engine) CreateRequest(borrower crypto.Address, terms RequestTerms) (request *Request, err error) {
	done, err := e.begin("createRequest")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	currency := normalizeCurrency(terms.Currency)
	if !terms.Collateral.HasToken() {
		return nil, errCollateralRequired
	}
	if e.collections == nil {
		return nil, errNilCollect
	}
	if !e.collections.IsWhitelisted(terms.Collateral.Collection) {
		return nil, errCollectionNotListed
	}
	if err = e.validateTerms(currency, terms.Principal, terms.APRBps, terms.Duration, terms.Expiry); err != nil {
		return nil, err
	}

	record := &Request{
		Borrower:   borrower,
		Collateral: terms.Collateral.Clone(),
		Currency:   currency,
		Principal:  cloneBigInt(terms.Principal),
		APRBps:     terms.APRBps,
		Duration:   terms.Duration,
		Expiry:     terms.Expiry,
		CreatedAt:  e.now(),
		Active:     true,
	}
	record.ID = e.nextID(borrower, record.Collateral)
	if err = e.state.RequestPut(record); err != nil {
		return nil, err
	}
	e.emit(NewRequestCreatedEvent(record))
	return record.Clone(), nil
}

// CancelRequest deactivates a request. Only the originating borrower may
// cancel, and cancelling twice fails on the second attempt.
func (e *Engine) CancelRequest(caller crypto.Address, requestID [32]byte) (err error) {
	done, err := e.begin("cancelRequest")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	request, ok := e.state.RequestGet(requestID)
	if !ok {
		return errRequestNotFound
	}
	if !request.Borrower.Equal(caller) {
		return errNotRequestOwner
	}
	if err = e.deactivateRequest(request); err != nil {
		return err
	}
	if err = e.state.RequestPut(request); err != nil {
		return err
	}
	e.emit(NewRequestCancelledEvent(request))
	return nil
}

func (e *Engine) deactivateRequest(request *Request) error {
	if request == nil {
		return errRequestNotFound
	}
	if !request.Active {
		return errRequestInactive
	}
	request.Active = false
	return nil
}

// GetRequest returns the stored request record.
func (e *Engine) GetRequest(requestID [32]byte) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	request, ok := e.state.RequestGet(requestID)
	if !ok {
		return nil, errRequestNotFound
	}
	return request.Clone(), nil
}

// AcceptOffer draws a loan against the offer. Standard offers lend their full
// principal; collection offers draw the per-draw maximum (or the remaining
// capacity if smaller).
func (e *Engine) AcceptOffer(borrower crypto.Address, offerID [32]byte, collateral types.CollateralRef) (*Loan, error) {
	return e.acceptOffer(borrower, offerID, collateral, nil)
}

// AcceptOfferWithPrincipal draws a caller-chosen principal from a collection
// offer, bounded by the per-draw maximum and the remaining capacity.
func (e *Engine) AcceptOfferWithPrincipal(borrower crypto.Address, offerID [32]byte, collateral types.CollateralRef, principal *big.Int) (*Loan, error) {
	if principal == nil || principal.Sign() <= 0 {
		return nil, errInvalidPrincipal
	}
	return e.acceptOffer(borrower, offerID, collateral, principal)
}

func (e *Engine) acceptOffer(borrower crypto.Address, offerID [32]byte, collateral types.CollateralRef, requested *big.Int) (loan *Loan, err error) {
	done, err := e.begin("acceptOffer")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	offer, ok := e.state.OfferGet(offerID)
	if !ok {
		return nil, errOfferNotFound
	}
	if !offer.Active {
		return nil, errOfferInactive
	}
	now := e.now()
	if now >= offer.Expiry {
		return nil, errOfferExpired
	}
	if offer.Lender.Equal(borrower) {
		return nil, errSelfDeal
	}

	var ref types.CollateralRef
	var principal *big.Int
	switch offer.Kind {
	case OfferStandard:
		if collateral.HasToken() && !collateral.Equal(offer.Collateral) {
			return nil, errCollateralMismatch
		}
		ref = offer.Collateral.Clone()
		principal = cloneBigInt(offer.Principal)
		if requested != nil && requested.Cmp(principal) != 0 {
			return nil, errInvalidPrincipal
		}
	case OfferCollection:
		if !collateral.HasToken() {
			return nil, errCollateralRequired
		}
		if !collateral.Collection.Equal(offer.Collateral.Collection) {
			return nil, errCollateralMismatch
		}
		if e.collections == nil || !e.collections.IsWhitelisted(collateral.Collection) {
			return nil, errCollectionNotListed
		}
		ref = collateral.Clone()
		remaining := offer.remainingCapacity()
		if remaining.Sign() == 0 {
			return nil, errCapacityExhausted
		}
		if requested != nil {
			if requested.Cmp(offer.MaxPerDraw) > 0 {
				return nil, errDrawExceedsCap
			}
			if requested.Cmp(remaining) > 0 {
				return nil, errCapacityExhausted
			}
			principal = cloneBigInt(requested)
		} else {
			principal = minBigInt(offer.MaxPerDraw, remaining)
		}
	default:
		return nil, errInvalidOfferKind
	}

	if err = e.checkCollateralCustody(ref, borrower); err != nil {
		return nil, err
	}

	fee := bpsShare(principal, offer.FeeBps)
	disbursed := new(big.Int).Sub(principal, fee)

	if err = e.custody.TransferUnique(ref, borrower, e.vault); err != nil {
		return nil, err
	}
	if err = e.custody.TransferFungible(offer.Currency, offer.Lender, borrower, disbursed); err != nil {
		return nil, err
	}

	if offer.Kind == OfferCollection {
		offer.AmountDrawn = new(big.Int).Add(cloneBigInt(offer.AmountDrawn), principal)
		if offer.remainingCapacity().Sign() == 0 {
			if err = e.deactivateOffer(offer); err != nil {
				return nil, err
			}
		}
	} else {
		if err = e.deactivateOffer(offer); err != nil {
			return nil, err
		}
	}
	if err = e.state.OfferPut(offer); err != nil {
		return nil, err
	}

	loan, err = e.createLoan(offer.ID, borrower, offer.Lender, ref, offer.Currency, principal, offer.APRBps, offer.Duration, fee, now)
	if err != nil {
		return nil, err
	}
	e.emit(NewOfferAcceptedEvent(offer, loan))
	return loan.Clone(), nil
}

// AcceptRequest fills a borrower's loan request, with the caller becoming
// lender. Requests carry no origination fee.
func (e *Engine) AcceptRequest(lender crypto.Address, requestID [32]byte) (loan *Loan, err error) {
	done, err := e.begin("acceptRequest")
	if err != nil {
		return nil, err
	}
	defer func() { done(err) }()

	request, ok := e.state.RequestGet(requestID)
	if !ok {
		return nil, errRequestNotFound
	}
	if !request.Active {
		return nil, errRequestInactive
	}
	now := e.now()
	if now >= request.Expiry {
		return nil, errRequestExpired
	}
	if request.Borrower.Equal(lender) {
		return nil, errSelfDeal
	}

	if err = e.checkCollateralCustody(request.Collateral, request.Borrower); err != nil {
		return nil, err
	}

	principal := cloneBigInt(request.Principal)
	if err = e.custody.TransferUnique(request.Collateral, request.Borrower, e.vault); err != nil {
		return nil, err
	}
	if err = e.custody.TransferFungible(request.Currency, lender, request.Borrower, principal); err != nil {
		return nil, err
	}

	if err = e.deactivateRequest(request); err != nil {
		return nil, err
	}
	if err = e.state.RequestPut(request); err != nil {
		return nil, err
	}

	loan, err = e.createLoan(request.ID, request.Borrower, lender, request.Collateral.Clone(), request.Currency, principal, request.APRBps, request.Duration, big.NewInt(0), now)
	if err != nil {
		return nil, err
	}
	e.emit(NewRequestAcceptedEvent(request, loan))
	return loan.Clone(), nil
}

// checkCollateralCustody verifies that the borrower holds the collateral and
// has granted the vault transfer rights over it.
func (e *Engine) checkCollateralCustody(ref types.CollateralRef, borrower crypto.Address) error {
	owner, ok := e.custody.OwnerOf(ref)
	if !ok || !owner.Equal(borrower) {
		return errCollateralNotHeld
	}
	if !e.custody.IsApproved(ref, e.vault) {
		return errCollateralLocked
	}
	return nil
}

func (e *Engine) createLoan(originID [32]byte, borrower, lender crypto.Address, ref types.CollateralRef, currency string, principal *big.Int, aprBps uint64, duration int64, fee *big.Int, now int64) (*Loan, error) {
	loan := &Loan{
		ID:              e.nextID(borrower, ref),
		OriginID:        originID,
		Borrower:        borrower,
		Lender:          lender,
		Collateral:      ref,
		Currency:        currency,
		Principal:       principal,
		APRBps:          aprBps,
		FeePaid:         fee,
		StartTime:       now,
		DueTime:         now + duration,
		AccruedInterest: big.NewInt(0),
		Status:          LoanActive,
	}
	if e.assets != nil {
		if assetID, ok := e.assets.ResolveAssetID(ref); ok && e.assets.IsRegistered(assetID) {
			loan.YieldAssetID = assetID
			loan.YieldEnrolled = true
		}
	}
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	e.emit(NewLoanCreatedEvent(loan))
	return loan, nil
}

// GetLoan returns the stored loan record.
func (e *Engine) GetLoan(loanID [32]byte) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return nil, errLoanNotFound
	}
	return loan.Clone(), nil
}

// GetListing returns the sale listing recorded for the loan, if any.
func (e *Engine) GetListing(loanID [32]byte) (*SaleListing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok := e.state.ListingGet(loanID)
	if !ok {
		return nil, errListingNotFound
	}
	return listing.Clone(), nil
}

// GetProposal returns the stored renegotiation proposal.
func (e *Engine) GetProposal(proposalID [32]byte) (*RenegotiationProposal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	proposal, ok := e.state.ProposalGet(proposalID)
	if !ok {
		return nil, errProposalNotFound
	}
	return proposal.Clone(), nil
}

// CalculateInterest computes the interest owed on the loan as of the given
// time. The calculation never mutates state and may be called repeatedly.
func (e *Engine) CalculateInterest(loanID [32]byte, asOf int64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return nil, errLoanNotFound
	}
	return interestOn(loan, asOf), nil
}

// IsRepayable reports whether the loan is active and not yet past due.
func (e *Engine) IsRepayable(loanID [32]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return false, errLoanNotFound
	}
	return loan.Status == LoanActive && e.now() <= loan.DueTime, nil
}

// IsInDefault reports whether the loan is active and strictly past due.
func (e *Engine) IsInDefault(loanID [32]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return false, errLoanNotFound
	}
	return loan.Status == LoanActive && e.now() > loan.DueTime, nil
}

// ClaimCollateral settles a defaulted loan in favour of the lender: the loan
// transitions to Defaulted and the collateral moves from the vault to the
// lender. A second claim fails because the loan is no longer active.
func (e *Engine) ClaimCollateral(caller crypto.Address, loanID [32]byte) (err error) {
	done, err := e.begin("claimCollateral")
	if err != nil {
		return err
	}
	defer func() { done(err) }()

	loan, ok := e.state.LoanGet(loanID)
	if !ok {
		return errLoanNotFound
	}
	if loan.Status != LoanActive {
		return errLoanNotActive
	}
	if !loan.Lender.Equal(caller) {
		return errNotLender
	}
	if e.now() <= loan.DueTime {
		return errLoanNotPastDue
	}

	if err = e.custody.TransferUnique(loan.Collateral, e.vault, loan.Lender); err != nil {
		return err
	}
	if err = e.retireListing(loan); err != nil {
		return err
	}

	loan.Status = LoanDefaulted
	// Interest freezes at the full-term value when the loan crosses into
	// default.
	loan.AccruedInterest = interestOn(loan, loan.DueTime)
	if err = e.state.LoanPut(loan); err != nil {
		return err
	}
	e.metrics.ObserveSettlement("default")
	e.emit(NewLoanDefaultedEvent(loan))
	return nil
}

// retireListing deactivates any active sale listing attached to the loan.
// Resolution of the loan through any path invalidates the listing.
func (e *Engine) retireListing(loan *Loan) error {
	listing, ok := e.state.ListingGet(loan.ID)
	if !ok || !listing.Active {
		return nil
	}
	listing.Active = false
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if e.market != nil {
		e.market.Cancelled(listing.Clone())
	}
	e.emit(NewListingCancelledEvent(listing))
	return nil
}
