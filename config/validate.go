package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/storage"
)

// Validate rejects configurations the daemon cannot start with.
func Validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if err := cfg.Ledger.Fee.Validate(); err != nil {
		return fmt.Errorf("ledger: fee: %w", err)
	}
	if err := cfg.Ledger.Split.Validate(); err != nil {
		return fmt.Errorf("ledger: split: %w", err)
	}
	if _, err := ParseAddress(cfg.Ledger.Owner, true); err != nil {
		return fmt.Errorf("ledger: owner: %w", err)
	}
	if cfg.Staking.LockPeriod.Duration < 0 {
		return fmt.Errorf("staking: lock period must not be negative")
	}
	if cfg.Incinerator.BurnInterval.Duration < 0 {
		return fmt.Errorf("incinerator: burn interval must not be negative")
	}
	if err := validateGenesis(cfg.Genesis); err != nil {
		return err
	}
	if !cfg.Auth.Disabled && cfg.JWTSecret() == "" {
		return fmt.Errorf("auth: secret required (set %s or Auth.HMACSecret)", cfg.Auth.SecretEnv)
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.History.Driver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("history: unknown driver %q", cfg.History.Driver)
	}
	if cfg.Keeper.Enabled {
		if _, err := ParseAddress(cfg.Keeper.Address, false); err != nil {
			return fmt.Errorf("keeper: address: %w", err)
		}
		if cfg.Keeper.MaxBatch < 0 {
			return fmt.Errorf("keeper: max_batch must not be negative")
		}
	}
	return nil
}

func validateGenesis(g Genesis) error {
	wrapped, err := ParseAddress(g.WrappedToken, true)
	if err != nil {
		return fmt.Errorf("genesis: wrapped token: %w", err)
	}
	if _, err := ParseAddress(g.ProtocolToken, true); err != nil {
		return fmt.Errorf("genesis: protocol token: %w", err)
	}
	known := map[common.Address]bool{}
	if wrapped != (common.Address{}) {
		known[wrapped] = true
	}
	for i, tok := range g.Tokens {
		addr, err := ParseAddress(tok.Address, false)
		if err != nil {
			return fmt.Errorf("genesis: token %d: %w", i, err)
		}
		if known[addr] {
			return fmt.Errorf("genesis: token %s registered twice", addr.Hex())
		}
		if tok.FeeBps > 10_000 {
			return fmt.Errorf("genesis: token %s fee above 10000 bps", addr.Hex())
		}
		known[addr] = true
	}
	for i, pool := range g.Pools {
		for _, raw := range []string{pool.TokenA, pool.TokenB} {
			addr, err := ParseAddress(raw, false)
			if err != nil {
				return fmt.Errorf("genesis: pool %d: %w", i, err)
			}
			if !known[addr] {
				return fmt.Errorf("genesis: pool %d names unregistered token %s", i, addr.Hex())
			}
		}
		for _, raw := range []string{pool.AmountA, pool.AmountB} {
			amt, err := ParseAmount(raw)
			if err != nil {
				return fmt.Errorf("genesis: pool %d: %w", i, err)
			}
			if amt.Sign() == 0 {
				return fmt.Errorf("genesis: pool %d: amounts must be positive", i)
			}
		}
	}
	for i, bal := range g.Balances {
		if _, err := ParseAddress(bal.Holder, false); err != nil {
			return fmt.Errorf("genesis: balance %d: %w", i, err)
		}
		token, err := ParseAddress(bal.Token, true)
		if err != nil {
			return fmt.Errorf("genesis: balance %d: %w", i, err)
		}
		if token != (common.Address{}) && !known[token] {
			return fmt.Errorf("genesis: balance %d names unregistered token %s", i, token.Hex())
		}
		if _, err := ParseAmount(bal.Amount); err != nil {
			return fmt.Errorf("genesis: balance %d: %w", i, err)
		}
	}
	return nil
}

// ParseAddress parses a hex address. Empty input yields the zero address when
// allowEmpty is set.
func ParseAddress(raw string, allowEmpty bool) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if allowEmpty {
			return common.Address{}, nil
		}
		return common.Address{}, fmt.Errorf("address required")
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return amount, nil
}
