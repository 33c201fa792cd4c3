package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"limitbook/native/fees"
	"limitbook/native/incinerator"
	"limitbook/native/staking"
)

// Config is the daemon configuration.
type Config struct {
	Service     Service     `toml:"Service" yaml:"service"`
	Storage     Storage     `toml:"Storage" yaml:"storage"`
	Ledger      Ledger      `toml:"Ledger" yaml:"ledger"`
	Staking     Staking     `toml:"Staking" yaml:"staking"`
	Incinerator Incinerator `toml:"Incinerator" yaml:"incinerator"`
	Genesis     Genesis     `toml:"Genesis" yaml:"genesis"`
	Auth        Auth        `toml:"Auth" yaml:"auth"`
	RateLimit   RateLimit   `toml:"RateLimit" yaml:"rate_limit"`
	History     History     `toml:"History" yaml:"history"`
	Keeper      Keeper      `toml:"Keeper" yaml:"keeper"`
	Logging     Logging     `toml:"Logging" yaml:"logging"`
	Telemetry   Telemetry   `toml:"Telemetry" yaml:"telemetry"`
}

// Load reads the configuration at path. YAML is selected by the .yaml and .yml
// extensions, TOML otherwise. A missing TOML file is created with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	isYAML := isYAMLPath(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if isYAML {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if isYAML {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Default returns the configuration written for a fresh installation.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.ListenAddress) == "" {
		cfg.Service.ListenAddress = ":7081"
	}
	if strings.TrimSpace(cfg.Service.Environment) == "" {
		cfg.Service.Environment = "local"
	}
	if cfg.Service.ReadTimeout.Duration == 0 {
		cfg.Service.ReadTimeout.Duration = 15 * time.Second
	}
	if cfg.Service.WriteTimeout.Duration == 0 {
		cfg.Service.WriteTimeout.Duration = 15 * time.Second
	}
	if cfg.Service.FlushInterval.Duration == 0 {
		cfg.Service.FlushInterval.Duration = 5 * time.Second
	}
	if strings.TrimSpace(cfg.Storage.Backend) == "" {
		cfg.Storage.Backend = "leveldb"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = "./limitbook-data"
	}
	if cfg.Ledger.Fee == (fees.Fraction{}) {
		cfg.Ledger.Fee = fees.DefaultFee
	}
	if cfg.Ledger.Split == (fees.Fraction{}) {
		cfg.Ledger.Split = fees.DefaultSplit
	}
	if cfg.Staking.LockPeriod.Duration == 0 {
		cfg.Staking.LockPeriod.Duration = staking.DefaultLockPeriod
	}
	if cfg.Incinerator.BurnInterval.Duration == 0 {
		cfg.Incinerator.BurnInterval.Duration = incinerator.DefaultBurnInterval
	}
	if strings.TrimSpace(cfg.Auth.SecretEnv) == "" {
		cfg.Auth.SecretEnv = "LIMITBOOK_JWT_SECRET"
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		cfg.Auth.Issuer = "limitbook"
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}
	if strings.TrimSpace(cfg.History.Driver) == "" {
		cfg.History.Driver = "sqlite"
	}
	if strings.TrimSpace(cfg.History.DSN) == "" {
		cfg.History.DSN = filepath.Join(cfg.Storage.Path, "history.sqlite")
	}
	if cfg.Keeper.Interval.Duration == 0 {
		cfg.Keeper.Interval.Duration = 10 * time.Second
	}
	if cfg.Keeper.MaxBatch == 0 {
		cfg.Keeper.MaxBatch = 32
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// JWTSecret resolves the signing secret, preferring the environment.
func (c *Config) JWTSecret() string {
	if env := strings.TrimSpace(c.Auth.SecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.Auth.HMACSecret)
}
