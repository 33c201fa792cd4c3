package config

import (
	"fmt"
	"strings"
	"time"

	"limitbook/native/fees"
)

// Duration wraps time.Duration so it can be written as "30s" or "24h" in TOML
// and YAML files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Service holds the HTTP surface settings.
type Service struct {
	ListenAddress string   `toml:"ListenAddress" yaml:"listen"`
	Environment   string   `toml:"Environment" yaml:"environment"`
	ReadTimeout   Duration `toml:"ReadTimeout" yaml:"read_timeout"`
	WriteTimeout  Duration `toml:"WriteTimeout" yaml:"write_timeout"`
	FlushInterval Duration `toml:"FlushInterval" yaml:"flush_interval"`
}

// Storage selects the state backend.
type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

// Ledger configures the order ledger.
type Ledger struct {
	Owner string        `toml:"Owner" yaml:"owner"`
	Fee   fees.Fraction `toml:"Fee" yaml:"fee"`
	Split fees.Fraction `toml:"Split" yaml:"split"`
	// HoldingPool routes the staker share into an interim pool until the owner
	// migrates it to the staking pool.
	HoldingPool bool `toml:"HoldingPool" yaml:"holding_pool"`
}

// Staking configures the reward pool.
type Staking struct {
	LockPeriod Duration `toml:"LockPeriod" yaml:"lock_period"`
}

// Incinerator configures the burn sink.
type Incinerator struct {
	BurnInterval Duration `toml:"BurnInterval" yaml:"burn_interval"`
}

// Token registers an asset with the bank.
type Token struct {
	Address string `toml:"Address" yaml:"address"`
	Symbol  string `toml:"Symbol" yaml:"symbol"`
	FeeBps  uint32 `toml:"FeeBps" yaml:"fee_bps"`
}

// Pool seeds an exchange pair at genesis.
type Pool struct {
	TokenA  string `toml:"TokenA" yaml:"token_a"`
	TokenB  string `toml:"TokenB" yaml:"token_b"`
	AmountA string `toml:"AmountA" yaml:"amount_a"`
	AmountB string `toml:"AmountB" yaml:"amount_b"`
}

// Balance seeds a holder at genesis. An empty token means native currency.
type Balance struct {
	Holder string `toml:"Holder" yaml:"holder"`
	Token  string `toml:"Token" yaml:"token"`
	Amount string `toml:"Amount" yaml:"amount"`
}

// Genesis describes the initial assets of a fresh state directory.
type Genesis struct {
	WrappedToken  string    `toml:"WrappedToken" yaml:"wrapped_token"`
	ProtocolToken string    `toml:"ProtocolToken" yaml:"protocol_token"`
	Tokens        []Token   `toml:"Tokens" yaml:"tokens"`
	Pools         []Pool    `toml:"Pools" yaml:"pools"`
	Balances      []Balance `toml:"Balances" yaml:"balances"`
}

// Auth configures bearer token verification.
type Auth struct {
	HMACSecret string `toml:"HMACSecret" yaml:"hmac_secret"`
	SecretEnv  string `toml:"SecretEnv" yaml:"secret_env"`
	Issuer     string `toml:"Issuer" yaml:"issuer"`
	Audience   string `toml:"Audience" yaml:"audience"`
	Disabled   bool   `toml:"Disabled" yaml:"disabled"`
}

// RateLimit bounds requests per caller.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// History configures the event history database.
type History struct {
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}

// Keeper configures the built-in executor.
type Keeper struct {
	Enabled  bool     `toml:"Enabled" yaml:"enabled"`
	Address  string   `toml:"Address" yaml:"address"`
	Interval Duration `toml:"Interval" yaml:"interval"`
	MaxBatch int      `toml:"MaxBatch" yaml:"max_batch"`
}

// Logging configures log output.
type Logging struct {
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
}
