package registry

import (
	"encoding/hex"
	"strings"

	"nftlend/config"
	"nftlend/crypto"
)

// CurrencyRegistry is an in-memory allow-list of currency symbols approved for
// lending. Symbols are case-insensitive.
type CurrencyRegistry struct {
	supported map[string]bool
}

// NewCurrencyRegistry builds a registry seeded with the given symbols.
func NewCurrencyRegistry(symbols []string) *CurrencyRegistry {
	r := &CurrencyRegistry{supported: make(map[string]bool, len(symbols))}
	for _, symbol := range symbols {
		r.Add(symbol)
	}
	return r
}

// Add approves a currency symbol.
func (r *CurrencyRegistry) Add(symbol string) {
	if r == nil {
		return
	}
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return
	}
	if r.supported == nil {
		r.supported = make(map[string]bool)
	}
	r.supported[trimmed] = true
}

// Remove revokes a previously approved currency symbol.
func (r *CurrencyRegistry) Remove(symbol string) {
	if r == nil || r.supported == nil {
		return
	}
	delete(r.supported, strings.ToUpper(strings.TrimSpace(symbol)))
}

// IsSupported reports whether the symbol is approved for lending.
func (r *CurrencyRegistry) IsSupported(symbol string) bool {
	if r == nil || r.supported == nil {
		return false
	}
	return r.supported[strings.ToUpper(strings.TrimSpace(symbol))]
}

// CollectionRegistry is an in-memory whitelist of collateral collections.
// Collections are keyed by their raw address bytes; the bech32 prefix is
// presentation only.
type CollectionRegistry struct {
	whitelisted map[string]bool
}

// NewCollectionRegistry builds a registry seeded with the given collections.
func NewCollectionRegistry(collections []crypto.Address) *CollectionRegistry {
	r := &CollectionRegistry{whitelisted: make(map[string]bool, len(collections))}
	for _, collection := range collections {
		r.Add(collection)
	}
	return r
}

func collectionKey(collection crypto.Address) string {
	return hex.EncodeToString(collection.Bytes())
}

// Add whitelists a collection.
func (r *CollectionRegistry) Add(collection crypto.Address) {
	if r == nil || collection.IsZero() {
		return
	}
	if r.whitelisted == nil {
		r.whitelisted = make(map[string]bool)
	}
	r.whitelisted[collectionKey(collection)] = true
}

// Remove revokes a previously whitelisted collection.
func (r *CollectionRegistry) Remove(collection crypto.Address) {
	if r == nil || r.whitelisted == nil {
		return
	}
	delete(r.whitelisted, collectionKey(collection))
}

// IsWhitelisted reports whether the collection may back new offers and
// requests.
func (r *CollectionRegistry) IsWhitelisted(collection crypto.Address) bool {
	if r == nil || r.whitelisted == nil {
		return false
	}
	return r.whitelisted[collectionKey(collection)]
}

// FromConfig seeds both registries from the protocol configuration.
func FromConfig(cfg *config.Config) (*CurrencyRegistry, *CollectionRegistry, error) {
	if cfg == nil {
		return NewCurrencyRegistry(nil), NewCollectionRegistry(nil), nil
	}
	collections, err := cfg.Collections()
	if err != nil {
		return nil, nil, err
	}
	return NewCurrencyRegistry(cfg.AllowedCurrencies), NewCollectionRegistry(collections), nil
}
