package lending

import "nftlend/config"

// Params groups the protocol-level caps applied when offers and requests are
// created. Zero caps disable the corresponding check, except the origination
// fee cap which always binds.
type Params struct {
	// OriginationFeeCapBps bounds the fee a lender may charge at loan
	// creation, expressed in basis points.
	OriginationFeeCapBps uint64
	// MaxAPRBps bounds the annualized rate, expressed in basis points.
	MaxAPRBps uint64
	// MaxDuration bounds the loan term in seconds.
	MaxDuration int64
}

// DefaultParams returns a conservative baseline configuration.
func DefaultParams() Params {
	return Params{
		OriginationFeeCapBps: 1_000,
		MaxAPRBps:            50_000,
	}
}

// ParamsFromConfig derives the engine caps from the protocol configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	if cfg == nil {
		return DefaultParams()
	}
	return Params{
		OriginationFeeCapBps: cfg.OriginationFeeCapBps,
		MaxAPRBps:            cfg.MaxAPRBps,
		MaxDuration:          cfg.MaxDurationSeconds,
	}
}
