package custody

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"nftlend/core/types"
	"nftlend/crypto"
)

// FungibleHook observes completed currency transfers. Hooks run after the
// balances have been updated, mirroring receiver-side callback semantics.
type FungibleHook func(currency string, from, to crypto.Address, amount *big.Int)

// UniqueHook observes completed collateral transfers.
type UniqueHook func(ref types.CollateralRef, from, to crypto.Address)

// Ledger is an in-memory custody service holding fungible balances and unique
// collateral assets. It backs the lending engine in tests and local tooling;
// production deployments substitute their own custody integration behind the
// same interface.
type Ledger struct {
	accounts      map[string]*types.Account
	owners        map[string]crypto.Address
	approvals     map[string]map[string]bool
	fungibleHooks []FungibleHook
	uniqueHooks   []UniqueHook
}

// NewLedger returns an empty custody ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:  make(map[string]*types.Account),
		owners:    make(map[string]crypto.Address),
		approvals: make(map[string]map[string]bool),
	}
}

func addrKey(addr crypto.Address) string {
	return hex.EncodeToString(addr.Bytes())
}

// OnFungibleTransfer registers a hook invoked after every currency transfer.
func (l *Ledger) OnFungibleTransfer(hook FungibleHook) {
	if l == nil || hook == nil {
		return
	}
	l.fungibleHooks = append(l.fungibleHooks, hook)
}

// OnUniqueTransfer registers a hook invoked after every collateral transfer.
func (l *Ledger) OnUniqueTransfer(hook UniqueHook) {
	if l == nil || hook == nil {
		return
	}
	l.uniqueHooks = append(l.uniqueHooks, hook)
}

func (l *Ledger) ensureAccount(addr crypto.Address) *types.Account {
	key := addrKey(addr)
	acc, ok := l.accounts[key]
	if !ok || acc == nil {
		acc = &types.Account{Balances: make(map[string]*big.Int)}
		l.accounts[key] = acc
	}
	return acc
}

// Mint credits the address with the given amount of currency.
func (l *Ledger) Mint(addr crypto.Address, currency string, amount *big.Int) {
	if l == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	acc := l.ensureAccount(addr)
	acc.SetBalance(currency, new(big.Int).Add(acc.Balance(currency), amount))
}

// Balance returns the fungible balance held by the address, never nil.
func (l *Ledger) Balance(addr crypto.Address, currency string) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	acc, ok := l.accounts[addrKey(addr)]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance(currency))
}

// MintAsset registers a unique collateral asset under the given owner.
func (l *Ledger) MintAsset(ref types.CollateralRef, owner crypto.Address) error {
	if l == nil {
		return fmt.Errorf("custody: nil ledger")
	}
	if !ref.HasToken() {
		return fmt.Errorf("custody: asset reference must pin a token")
	}
	key := ref.Key()
	if _, ok := l.owners[key]; ok {
		return fmt.Errorf("custody: asset %s already minted", key)
	}
	l.owners[key] = owner
	return nil
}

// Approve grants the operator transfer rights over the asset.
func (l *Ledger) Approve(ref types.CollateralRef, operator crypto.Address) {
	if l == nil {
		return
	}
	key := ref.Key()
	if l.approvals[key] == nil {
		l.approvals[key] = make(map[string]bool)
	}
	l.approvals[key][addrKey(operator)] = true
}

// OwnerOf reports the current holder of the asset.
func (l *Ledger) OwnerOf(ref types.CollateralRef) (crypto.Address, bool) {
	if l == nil {
		return crypto.Address{}, false
	}
	owner, ok := l.owners[ref.Key()]
	return owner, ok
}

// IsApproved reports whether the operator may move the asset.
func (l *Ledger) IsApproved(ref types.CollateralRef, operator crypto.Address) bool {
	if l == nil {
		return false
	}
	ops, ok := l.approvals[ref.Key()]
	if !ok {
		return false
	}
	return ops[addrKey(operator)]
}

// TransferFungible moves currency between two accounts.
func (l *Ledger) TransferFungible(currency string, from, to crypto.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("custody: nil ledger")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("custody: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAcc := l.ensureAccount(from)
	toAcc := l.ensureAccount(to)
	balance := fromAcc.Balance(currency)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("custody: insufficient %s balance", currency)
	}
	fromAcc.SetBalance(currency, new(big.Int).Sub(balance, amount))
	toAcc.SetBalance(currency, new(big.Int).Add(toAcc.Balance(currency), amount))
	for _, hook := range l.fungibleHooks {
		hook(currency, from, to, new(big.Int).Set(amount))
	}
	return nil
}

// TransferUnique moves a collateral asset between holders. Approvals are
// cleared on transfer.
func (l *Ledger) TransferUnique(ref types.CollateralRef, from, to crypto.Address) error {
	if l == nil {
		return fmt.Errorf("custody: nil ledger")
	}
	key := ref.Key()
	owner, ok := l.owners[key]
	if !ok {
		return fmt.Errorf("custody: unknown asset %s", key)
	}
	if !owner.Equal(from) {
		return fmt.Errorf("custody: asset %s not held by sender", key)
	}
	l.owners[key] = to
	delete(l.approvals, key)
	for _, hook := range l.uniqueHooks {
		hook(ref.Clone(), from, to)
	}
	return nil
}
