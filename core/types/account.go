package types

import "math/big"

// Account tracks the fungible balances held by a single protocol participant.
// Balances are keyed by currency symbol and denominated in the smallest unit
// of the currency, expressed as big integers.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// Balance returns the balance held in the given currency, never nil.
func (a *Account) Balance(currency string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[currency]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

// SetBalance records the balance held in the given currency.
func (a *Account) SetBalance(currency string, amount *big.Int) {
	if a == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[currency] = new(big.Int).Set(amount)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balances: make(map[string]*big.Int)}
	}
	clone := &Account{Nonce: a.Nonce, Balances: make(map[string]*big.Int, len(a.Balances))}
	for currency, bal := range a.Balances {
		if bal == nil {
			bal = big.NewInt(0)
		}
		clone.Balances[currency] = new(big.Int).Set(bal)
	}
	return clone
}
