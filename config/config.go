package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"nftlend/crypto"
)

// Config captures the protocol-level configuration for the loan lifecycle
// engine: the currency allow-list, the collateral collection whitelist and the
// caps applied when offers and requests are created.
type Config struct {
	AllowedCurrencies      []string `toml:"AllowedCurrencies"`
	WhitelistedCollections []string `toml:"WhitelistedCollections"`
	OriginationFeeCapBps   uint64   `toml:"OriginationFeeCapBps"`
	MaxAPRBps              uint64   `toml:"MaxAPRBps"`
	MaxDurationSeconds     int64    `toml:"MaxDurationSeconds"`
	PausedModules          []string `toml:"PausedModules"`
}

// Default returns the baseline configuration applied when fields are omitted.
func Default() *Config {
	return &Config{
		AllowedCurrencies:    []string{},
		OriginationFeeCapBps: 1_000,
		MaxAPRBps:            50_000,
	}
}

// Load reads the TOML configuration from the given path and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	currencies := make([]string, 0, len(cfg.AllowedCurrencies))
	for _, symbol := range cfg.AllowedCurrencies {
		trimmed := strings.ToUpper(strings.TrimSpace(symbol))
		if trimmed != "" {
			currencies = append(currencies, trimmed)
		}
	}
	cfg.AllowedCurrencies = currencies

	collections := make([]string, 0, len(cfg.WhitelistedCollections))
	for _, addr := range cfg.WhitelistedCollections {
		trimmed := strings.TrimSpace(addr)
		if trimmed != "" {
			collections = append(collections, trimmed)
		}
	}
	cfg.WhitelistedCollections = collections

	modules := make([]string, 0, len(cfg.PausedModules))
	for _, module := range cfg.PausedModules {
		trimmed := strings.ToLower(strings.TrimSpace(module))
		if trimmed != "" {
			modules = append(modules, trimmed)
		}
	}
	cfg.PausedModules = modules
}

// Validate checks the configuration for internal consistency.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.OriginationFeeCapBps > 10_000 {
		return fmt.Errorf("origination fee cap out of range: %d bps", cfg.OriginationFeeCapBps)
	}
	if cfg.MaxDurationSeconds < 0 {
		return fmt.Errorf("max duration must not be negative")
	}
	for _, addr := range cfg.WhitelistedCollections {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("whitelisted collection %q: %w", addr, err)
		}
	}
	return nil
}

// Collections decodes the whitelisted collection addresses.
func (cfg *Config) Collections() ([]crypto.Address, error) {
	if cfg == nil {
		return nil, nil
	}
	out := make([]crypto.Address, 0, len(cfg.WhitelistedCollections))
	for _, addr := range cfg.WhitelistedCollections {
		decoded, err := crypto.DecodeAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("whitelisted collection %q: %w", addr, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

// IsPaused reports whether the named module has been switched off. The method
// satisfies the engine's pause view.
func (cfg *Config) IsPaused(module string) bool {
	if cfg == nil {
		return false
	}
	trimmed := strings.ToLower(strings.TrimSpace(module))
	for _, paused := range cfg.PausedModules {
		if paused == trimmed {
			return true
		}
	}
	return false
}
