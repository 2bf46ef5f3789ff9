package lending

import "sync"

// MemoryState is a map-backed implementation of the engine's persistence
// interface. Records are cloned on the way in and out so callers can never
// alias engine-held state.
type MemoryState struct {
	mu        sync.Mutex
	seq       uint64
	offers    map[[32]byte]*Offer
	requests  map[[32]byte]*Request
	loans     map[[32]byte]*Loan
	proposals map[[32]byte]*RenegotiationProposal
	listings  map[[32]byte]*SaleListing
}

// NewMemoryState returns an empty state store.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		offers:    make(map[[32]byte]*Offer),
		requests:  make(map[[32]byte]*Request),
		loans:     make(map[[32]byte]*Loan),
		proposals: make(map[[32]byte]*RenegotiationProposal),
		listings:  make(map[[32]byte]*SaleListing),
	}
}

// NextSequence returns a monotonically increasing counter used for id
// derivation.
func (s *MemoryState) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *MemoryState) OfferPut(offer *Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[offer.ID] = offer.Clone()
	return nil
}

func (s *MemoryState) OfferGet(id [32]byte) (*Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer, ok := s.offers[id]
	if !ok {
		return nil, false
	}
	return offer.Clone(), true
}

func (s *MemoryState) RequestPut(request *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.ID] = request.Clone()
	return nil
}

func (s *MemoryState) RequestGet(id [32]byte) (*Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, false
	}
	return request.Clone(), true
}

func (s *MemoryState) LoanPut(loan *Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[loan.ID] = loan.Clone()
	return nil
}

func (s *MemoryState) LoanGet(id [32]byte) (*Loan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, false
	}
	return loan.Clone(), true
}

func (s *MemoryState) ProposalPut(proposal *RenegotiationProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[proposal.ID] = proposal.Clone()
	return nil
}

func (s *MemoryState) ProposalGet(id [32]byte) (*RenegotiationProposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal, ok := s.proposals[id]
	if !ok {
		return nil, false
	}
	return proposal.Clone(), true
}

func (s *MemoryState) ListingPut(listing *SaleListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.LoanID] = listing.Clone()
	return nil
}

func (s *MemoryState) ListingGet(loanID [32]byte) (*SaleListing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[loanID]
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

var _ engineState = (*MemoryState)(nil)
