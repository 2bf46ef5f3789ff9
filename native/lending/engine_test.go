package lending

import (
	"errors"
	"math/big"
	"testing"

	"nftlend/core/events"
	"nftlend/core/types"
	"nftlend/crypto"
	nativecommon "nftlend/native/common"
	"nftlend/native/custody"
	"nftlend/native/registry"
)

const testCurrency = "USDC"

func addrWithByte(prefix crypto.AddressPrefix, b byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(prefix, raw)
}

func accountAddr(b byte) crypto.Address {
	return addrWithByte(crypto.AccountPrefix, b)
}

func collectionAddr(b byte) crypto.Address {
	return addrWithByte(crypto.CollectionPrefix, b)
}

type eventRecorder struct {
	emitted []string
}

func (r *eventRecorder) Emit(evt events.Event) {
	r.emitted = append(r.emitted, evt.EventType())
}

func (r *eventRecorder) contains(eventType string) bool {
	for _, emitted := range r.emitted {
		if emitted == eventType {
			return true
		}
	}
	return false
}

type stubPauses struct {
	paused map[string]bool
}

func (p *stubPauses) IsPaused(module string) bool { return p.paused[module] }

type testEnv struct {
	engine     *Engine
	state      *MemoryState
	ledger     *custody.Ledger
	events     *eventRecorder
	vault      crypto.Address
	collection crypto.Address
	now        int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:      NewMemoryState(),
		ledger:     custody.NewLedger(),
		events:     &eventRecorder{},
		vault:      accountAddr(0xfe),
		collection: collectionAddr(0xcc),
		now:        1_000_000,
	}
	engine := NewEngine(env.vault, Params{OriginationFeeCapBps: 1_000, MaxAPRBps: 50_000})
	engine.SetState(env.state)
	engine.SetCustody(env.ledger)
	engine.SetRegistries(
		registry.NewCurrencyRegistry([]string{testCurrency}),
		registry.NewCollectionRegistry([]crypto.Address{env.collection}),
	)
	engine.SetEmitter(env.events)
	engine.SetNowFunc(func() int64 { return env.now })
	env.engine = engine
	return env
}

func (env *testEnv) collateral(token int64) types.CollateralRef {
	return types.CollateralRef{Collection: env.collection, TokenID: big.NewInt(token)}
}

// fundBorrower mints the collateral to the borrower and pre-approves the
// vault.
func (env *testEnv) fundBorrower(t *testing.T, borrower crypto.Address, ref types.CollateralRef) {
	t.Helper()
	if err := env.ledger.MintAsset(ref, borrower); err != nil {
		t.Fatalf("mint asset: %v", err)
	}
	env.ledger.Approve(ref, env.vault)
}

func (env *testEnv) standardTerms(principal *big.Int) OfferTerms {
	return OfferTerms{
		Kind:       OfferStandard,
		Collateral: env.collateral(1),
		Currency:   testCurrency,
		Principal:  principal,
		APRBps:     500,
		Duration:   2_592_000,
		Expiry:     env.now + 86_400,
		FeeBps:     100,
	}
}

func (env *testEnv) requestTerms(principal *big.Int) RequestTerms {
	return RequestTerms{
		Collateral: env.collateral(1),
		Currency:   testCurrency,
		Principal:  principal,
		APRBps:     500,
		Duration:   2_592_000,
		Expiry:     env.now + 86_400,
	}
}

// openLoan walks the standard offer path to an active loan and returns it.
func (env *testEnv) openLoan(t *testing.T, lender, borrower crypto.Address, principal *big.Int) *Loan {
	t.Helper()
	offer, err := env.engine.CreateOffer(lender, env.standardTerms(principal))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	env.fundBorrower(t, borrower, offer.Collateral)
	env.ledger.Mint(lender, testCurrency, principal)
	loan, err := env.engine.AcceptOffer(borrower, offer.ID, types.CollateralRef{})
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	return loan
}

func TestCreateOfferValidation(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	principal := big.NewInt(1_000_000)

	cases := []struct {
		name   string
		mutate func(*OfferTerms)
		want   error
	}{
		{"unsupported currency", func(o *OfferTerms) { o.Currency = "DOGE" }, errUnsupportedCurrency},
		{"zero principal", func(o *OfferTerms) { o.Principal = big.NewInt(0) }, errInvalidPrincipal},
		{"nil principal", func(o *OfferTerms) { o.Principal = nil }, errInvalidPrincipal},
		{"zero duration", func(o *OfferTerms) { o.Duration = 0 }, errInvalidDuration},
		{"expiry at now", func(o *OfferTerms) { o.Expiry = env.now }, errExpiryInPast},
		{"fee above cap", func(o *OfferTerms) { o.FeeBps = 1_001 }, errFeeAboveCap},
		{"apr above cap", func(o *OfferTerms) { o.APRBps = 50_001 }, errAPRAboveCap},
		{"unlisted collection", func(o *OfferTerms) {
			o.Collateral.Collection = collectionAddr(0xdd)
		}, errCollectionNotListed},
		{"missing token", func(o *OfferTerms) { o.Collateral.TokenID = nil }, errCollateralRequired},
		{"bad kind", func(o *OfferTerms) { o.Kind = OfferKind(9) }, errInvalidOfferKind},
	}
	for _, tc := range cases {
		terms := env.standardTerms(principal)
		tc.mutate(&terms)
		if _, err := env.engine.CreateOffer(lender, terms); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCreateOfferNormalizesCurrency(t *testing.T) {
	env := newTestEnv(t)
	terms := env.standardTerms(big.NewInt(500))
	terms.Currency = "  usdc "
	offer, err := env.engine.CreateOffer(accountAddr(0x01), terms)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if offer.Currency != testCurrency {
		t.Fatalf("currency not normalized: %q", offer.Currency)
	}
	if !offer.Active {
		t.Fatalf("new offer should be active")
	}
	if !env.events.contains(EventTypeOfferCreated) {
		t.Fatalf("missing offer created event")
	}
}

func TestCancelOffer(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	offer, err := env.engine.CreateOffer(lender, env.standardTerms(big.NewInt(500)))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if err := env.engine.CancelOffer(accountAddr(0x02), offer.ID); !errors.Is(err, errNotOfferOwner) {
		t.Fatalf("stranger cancel: got %v", err)
	}
	if err := env.engine.CancelOffer(lender, offer.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored, err := env.engine.GetOffer(offer.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if stored.Active {
		t.Fatalf("offer still active after cancel")
	}
	// The record survives deactivation; a second cancel is a distinct error.
	if err := env.engine.CancelOffer(lender, offer.ID); !errors.Is(err, errOfferInactive) {
		t.Fatalf("double cancel: got %v", err)
	}
	if !env.events.contains(EventTypeOfferCancelled) {
		t.Fatalf("missing offer cancelled event")
	}
}

func TestCancelRequest(t *testing.T) {
	env := newTestEnv(t)
	borrower := accountAddr(0x02)
	request, err := env.engine.CreateRequest(borrower, env.requestTerms(big.NewInt(500)))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := env.engine.CancelRequest(accountAddr(0x03), request.ID); !errors.Is(err, errNotRequestOwner) {
		t.Fatalf("stranger cancel: got %v", err)
	}
	if err := env.engine.CancelRequest(borrower, request.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := env.engine.CancelRequest(borrower, request.ID); !errors.Is(err, errRequestInactive) {
		t.Fatalf("double cancel: got %v", err)
	}
}

func TestAcceptOfferCreatesLoan(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	borrower := accountAddr(0x02)
	principal := new(big.Int).SetUint64(1_000_000_000_000_000_000)

	offer, err := env.engine.CreateOffer(lender, env.standardTerms(principal))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	env.fundBorrower(t, borrower, offer.Collateral)
	env.ledger.Mint(lender, testCurrency, principal)

	loan, err := env.engine.AcceptOffer(borrower, offer.ID, types.CollateralRef{})
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}

	// 100 bps origination fee stays with the lender.
	fee := new(big.Int).SetUint64(10_000_000_000_000_000)
	disbursed := new(big.Int).Sub(principal, fee)
	if got := env.ledger.Balance(borrower, testCurrency); got.Cmp(disbursed) != 0 {
		t.Fatalf("borrower received %s, want %s", got, disbursed)
	}
	if got := env.ledger.Balance(lender, testCurrency); got.Cmp(fee) != 0 {
		t.Fatalf("lender retained %s, want %s", got, fee)
	}
	if owner, _ := env.ledger.OwnerOf(loan.Collateral); !owner.Equal(env.vault) {
		t.Fatalf("collateral not in vault")
	}
	if loan.Status != LoanActive {
		t.Fatalf("loan status = %d", loan.Status)
	}
	if loan.Principal.Cmp(principal) != 0 {
		t.Fatalf("loan principal = %s", loan.Principal)
	}
	if loan.FeePaid.Cmp(fee) != 0 {
		t.Fatalf("loan fee = %s", loan.FeePaid)
	}
	if loan.StartTime != env.now || loan.DueTime != env.now+2_592_000 {
		t.Fatalf("loan times = %d..%d", loan.StartTime, loan.DueTime)
	}
	if loan.OriginID != offer.ID {
		t.Fatalf("loan origin mismatch")
	}

	stored, err := env.engine.GetOffer(offer.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if stored.Active {
		t.Fatalf("standard offer still active after acceptance")
	}
	if _, err := env.engine.AcceptOffer(accountAddr(0x03), offer.ID, types.CollateralRef{}); !errors.Is(err, errOfferInactive) {
		t.Fatalf("second acceptance: got %v", err)
	}
	if !env.events.contains(EventTypeLoanCreated) || !env.events.contains(EventTypeOfferAccepted) {
		t.Fatalf("missing acceptance events: %v", env.events.emitted)
	}
}

func TestAcceptOfferGuards(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	borrower := accountAddr(0x02)
	principal := big.NewInt(1_000_000)

	offer, err := env.engine.CreateOffer(lender, env.standardTerms(principal))
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	if _, err := env.engine.AcceptOffer(lender, offer.ID, types.CollateralRef{}); !errors.Is(err, errSelfDeal) {
		t.Fatalf("self deal: got %v", err)
	}
	// Borrower has not minted the collateral yet.
	if _, err := env.engine.AcceptOffer(borrower, offer.ID, types.CollateralRef{}); !errors.Is(err, errCollateralNotHeld) {
		t.Fatalf("collateral not held: got %v", err)
	}
	if err := env.ledger.MintAsset(offer.Collateral, borrower); err != nil {
		t.Fatalf("mint asset: %v", err)
	}
	// Minted but the vault has no transfer rights.
	if _, err := env.engine.AcceptOffer(borrower, offer.ID, types.CollateralRef{}); !errors.Is(err, errCollateralLocked) {
		t.Fatalf("vault unapproved: got %v", err)
	}
	env.ledger.Approve(offer.Collateral, env.vault)

	mismatched := env.collateral(99)
	if _, err := env.engine.AcceptOffer(borrower, offer.ID, mismatched); !errors.Is(err, errCollateralMismatch) {
		t.Fatalf("collateral mismatch: got %v", err)
	}

	env.now = offer.Expiry
	if _, err := env.engine.AcceptOffer(borrower, offer.ID, types.CollateralRef{}); !errors.Is(err, errOfferExpired) {
		t.Fatalf("expired offer: got %v", err)
	}
}

func TestAcceptRequestCreatesLoan(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	borrower := accountAddr(0x02)
	principal := big.NewInt(5_000_000)

	request, err := env.engine.CreateRequest(borrower, env.requestTerms(principal))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	env.fundBorrower(t, borrower, request.Collateral)
	env.ledger.Mint(lender, testCurrency, principal)

	if _, err := env.engine.AcceptRequest(borrower, request.ID); !errors.Is(err, errSelfDeal) {
		t.Fatalf("self deal: got %v", err)
	}
	loan, err := env.engine.AcceptRequest(lender, request.ID)
	if err != nil {
		t.Fatalf("accept request: %v", err)
	}

	// Requests carry no origination fee: the full principal disburses.
	if got := env.ledger.Balance(borrower, testCurrency); got.Cmp(principal) != 0 {
		t.Fatalf("borrower received %s, want %s", got, principal)
	}
	if loan.FeePaid.Sign() != 0 {
		t.Fatalf("request-path loan charged a fee: %s", loan.FeePaid)
	}
	if !loan.Lender.Equal(lender) || !loan.Borrower.Equal(borrower) {
		t.Fatalf("loan parties wrong")
	}
	if _, err := env.engine.AcceptRequest(accountAddr(0x03), request.ID); !errors.Is(err, errRequestInactive) {
		t.Fatalf("second acceptance: got %v", err)
	}
}

func TestCollectionOfferDraws(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	borrower := accountAddr(0x02)

	terms := OfferTerms{
		Kind:          OfferCollection,
		Collateral:    types.CollateralRef{Collection: env.collection},
		Currency:      testCurrency,
		APRBps:        500,
		Duration:      2_592_000,
		Expiry:        env.now + 86_400,
		TotalCapacity: big.NewInt(10_000),
		MaxPerDraw:    big.NewInt(4_000),
		MinDraws:      2,
	}
	offer, err := env.engine.CreateOffer(lender, terms)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	env.ledger.Mint(lender, testCurrency, big.NewInt(10_000))

	// Capacity must admit the committed minimum number of full draws.
	bad := terms
	bad.MinDraws = 3
	if _, err := env.engine.CreateOffer(lender, bad); !errors.Is(err, errCapacityUnderMin) {
		t.Fatalf("capacity under min: got %v", err)
	}

	// First draw defaults to the per-draw maximum.
	ref1 := env.collateral(1)
	env.fundBorrower(t, borrower, ref1)
	loan1, err := env.engine.AcceptOffer(borrower, offer.ID, ref1)
	if err != nil {
		t.Fatalf("first draw: %v", err)
	}
	if loan1.Principal.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("first draw principal = %s", loan1.Principal)
	}

	// Explicit draws above the per-draw maximum are rejected.
	ref2 := env.collateral(2)
	env.fundBorrower(t, borrower, ref2)
	if _, err := env.engine.AcceptOfferWithPrincipal(borrower, offer.ID, ref2, big.NewInt(4_001)); !errors.Is(err, errDrawExceedsCap) {
		t.Fatalf("oversized draw: got %v", err)
	}
	loan2, err := env.engine.AcceptOfferWithPrincipal(borrower, offer.ID, ref2, big.NewInt(4_000))
	if err != nil {
		t.Fatalf("second draw: %v", err)
	}
	if loan2.Principal.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("second draw principal = %s", loan2.Principal)
	}

	// Third draw clamps to the remaining 2k and exhausts the offer.
	ref3 := env.collateral(3)
	env.fundBorrower(t, borrower, ref3)
	loan3, err := env.engine.AcceptOffer(borrower, offer.ID, ref3)
	if err != nil {
		t.Fatalf("third draw: %v", err)
	}
	if loan3.Principal.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("third draw principal = %s", loan3.Principal)
	}
	stored, err := env.engine.GetOffer(offer.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if stored.Active {
		t.Fatalf("exhausted offer still active")
	}
	if stored.AmountDrawn.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("amount drawn = %s", stored.AmountDrawn)
	}

	ref4 := env.collateral(4)
	env.fundBorrower(t, borrower, ref4)
	if _, err := env.engine.AcceptOffer(borrower, offer.ID, ref4); !errors.Is(err, errOfferInactive) {
		t.Fatalf("draw on exhausted offer: got %v", err)
	}
}

func TestCollectionOfferRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	offer, err := env.engine.CreateOffer(lender, OfferTerms{
		Kind:          OfferCollection,
		Collateral:    types.CollateralRef{Collection: env.collection},
		Currency:      testCurrency,
		APRBps:        500,
		Duration:      2_592_000,
		Expiry:        env.now + 86_400,
		TotalCapacity: big.NewInt(1_000),
		MaxPerDraw:    big.NewInt(1_000),
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	borrower := accountAddr(0x02)
	if _, err := env.engine.AcceptOffer(borrower, offer.ID, types.CollateralRef{}); !errors.Is(err, errCollateralRequired) {
		t.Fatalf("tokenless draw: got %v", err)
	}
	foreign := types.CollateralRef{Collection: collectionAddr(0xdd), TokenID: big.NewInt(1)}
	if _, err := env.engine.AcceptOffer(borrower, offer.ID, foreign); !errors.Is(err, errCollateralMismatch) {
		t.Fatalf("foreign collection: got %v", err)
	}
}

func TestClaimCollateral(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	borrower := accountAddr(0x02)
	loan := env.openLoan(t, lender, borrower, big.NewInt(1_000_000))

	// Not claimable at the due time, only strictly after it.
	env.now = loan.DueTime
	if err := env.engine.ClaimCollateral(lender, loan.ID); !errors.Is(err, errLoanNotPastDue) {
		t.Fatalf("claim at due: got %v", err)
	}
	env.now = loan.DueTime + 1
	if err := env.engine.ClaimCollateral(borrower, loan.ID); !errors.Is(err, errNotLender) {
		t.Fatalf("borrower claim: got %v", err)
	}
	if err := env.engine.ClaimCollateral(lender, loan.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if owner, _ := env.ledger.OwnerOf(loan.Collateral); !owner.Equal(lender) {
		t.Fatalf("collateral not with lender")
	}
	settled, err := env.engine.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if settled.Status != LoanDefaulted {
		t.Fatalf("status = %d", settled.Status)
	}
	fullTerm := Interest(loan.Principal, loan.APRBps, loan.StartTime, loan.DueTime, loan.DueTime)
	if settled.AccruedInterest.Cmp(fullTerm) != 0 {
		t.Fatalf("frozen interest = %s, want %s", settled.AccruedInterest, fullTerm)
	}
	if err := env.engine.ClaimCollateral(lender, loan.ID); !errors.Is(err, errLoanNotActive) {
		t.Fatalf("second claim: got %v", err)
	}
	if !env.events.contains(EventTypeLoanDefaulted) {
		t.Fatalf("missing default event")
	}
}

func TestLoanStatusQueries(t *testing.T) {
	env := newTestEnv(t)
	loan := env.openLoan(t, accountAddr(0x01), accountAddr(0x02), big.NewInt(1_000))

	repayable, err := env.engine.IsRepayable(loan.ID)
	if err != nil || !repayable {
		t.Fatalf("IsRepayable = %v, %v", repayable, err)
	}
	inDefault, err := env.engine.IsInDefault(loan.ID)
	if err != nil || inDefault {
		t.Fatalf("IsInDefault = %v, %v", inDefault, err)
	}

	env.now = loan.DueTime
	if repayable, _ = env.engine.IsRepayable(loan.ID); !repayable {
		t.Fatalf("loan should be repayable at the due time")
	}
	env.now = loan.DueTime + 1
	if repayable, _ = env.engine.IsRepayable(loan.ID); repayable {
		t.Fatalf("loan repayable past due")
	}
	if inDefault, _ = env.engine.IsInDefault(loan.ID); !inDefault {
		t.Fatalf("loan not flagged as defaulted")
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetPauses(&stubPauses{paused: map[string]bool{moduleName: true}})

	if _, err := env.engine.CreateOffer(accountAddr(0x01), env.standardTerms(big.NewInt(100))); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused create: got %v", err)
	}
	if err := env.engine.CancelOffer(accountAddr(0x01), [32]byte{1}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("paused cancel: got %v", err)
	}
}

func TestReentrantRepayRejected(t *testing.T) {
	env := newTestEnv(t)
	lender := accountAddr(0x01)
	borrower := accountAddr(0x02)
	loan := env.openLoan(t, lender, borrower, big.NewInt(1_000_000))
	env.ledger.Mint(borrower, testCurrency, big.NewInt(1_000_000))

	var reentrant error
	var fired bool
	env.ledger.OnFungibleTransfer(func(string, crypto.Address, crypto.Address, *big.Int) {
		if fired {
			return
		}
		fired = true
		reentrant = env.engine.Repay(borrower, loan.ID)
	})

	if err := env.engine.Repay(borrower, loan.ID); err != nil {
		t.Fatalf("outer repay: %v", err)
	}
	if !fired {
		t.Fatalf("transfer hook never fired")
	}
	if !errors.Is(reentrant, nativecommon.ErrReentrantCall) {
		t.Fatalf("nested repay: got %v, want %v", reentrant, nativecommon.ErrReentrantCall)
	}
}

func TestEngineRequiresWiring(t *testing.T) {
	engine := NewEngine(accountAddr(0xfe), DefaultParams())
	if _, err := engine.CreateOffer(accountAddr(0x01), OfferTerms{}); !errors.Is(err, errNilState) {
		t.Fatalf("no state: got %v", err)
	}
	engine.SetState(NewMemoryState())
	if _, err := engine.CreateOffer(accountAddr(0x01), OfferTerms{}); !errors.Is(err, errNilCustody) {
		t.Fatalf("no custody: got %v", err)
	}
}
