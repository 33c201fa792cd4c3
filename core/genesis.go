package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"limitbook/config"
	"limitbook/core/types"
)

// GenesisProvider is the account that supplies genesis liquidity.
var GenesisProvider = types.ModuleAddress("genesis")

// Genesis is the initial asset layout of a fresh node.
type Genesis struct {
	Tokens   []GenesisToken
	Pools    []GenesisPool
	Balances []GenesisBalance
}

// GenesisToken registers a token. FeeBps > 0 makes it deflationary.
type GenesisToken struct {
	Address common.Address
	Symbol  string
	FeeBps  uint32
}

// GenesisPool seeds an exchange pair from GenesisProvider.
type GenesisPool struct {
	TokenA  common.Address
	TokenB  common.Address
	AmountA *big.Int
	AmountB *big.Int
}

// GenesisBalance credits a holder. A zero Token means native currency.
type GenesisBalance struct {
	Holder common.Address
	Token  common.Address
	Amount *big.Int
}

// NodeOptions converts a validated configuration into node options.
func NodeOptions(cfg *config.Config) (Options, error) {
	owner, err := config.ParseAddress(cfg.Ledger.Owner, false)
	if err != nil {
		return Options{}, fmt.Errorf("ledger owner: %w", err)
	}
	wrapped, err := config.ParseAddress(cfg.Genesis.WrappedToken, false)
	if err != nil {
		return Options{}, fmt.Errorf("wrapped token: %w", err)
	}
	protocol, err := config.ParseAddress(cfg.Genesis.ProtocolToken, false)
	if err != nil {
		return Options{}, fmt.Errorf("protocol token: %w", err)
	}
	genesis, err := GenesisFromConfig(cfg.Genesis)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Owner:         owner,
		WrappedToken:  wrapped,
		ProtocolToken: protocol,
		Fee:           cfg.Ledger.Fee,
		Split:         cfg.Ledger.Split,
		LockPeriod:    cfg.Staking.LockPeriod.Duration,
		BurnInterval:  cfg.Incinerator.BurnInterval.Duration,
		HoldingPool:   cfg.Ledger.HoldingPool,
		Genesis:       genesis,
	}, nil
}

// GenesisFromConfig parses the string form used in configuration files.
func GenesisFromConfig(g config.Genesis) (*Genesis, error) {
	out := &Genesis{}
	for i, tok := range g.Tokens {
		addr, err := config.ParseAddress(tok.Address, false)
		if err != nil {
			return nil, fmt.Errorf("genesis token %d: %w", i, err)
		}
		out.Tokens = append(out.Tokens, GenesisToken{Address: addr, Symbol: tok.Symbol, FeeBps: tok.FeeBps})
	}
	for i, pool := range g.Pools {
		a, err := config.ParseAddress(pool.TokenA, false)
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		b, err := config.ParseAddress(pool.TokenB, false)
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		amountA, err := config.ParseAmount(pool.AmountA)
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		amountB, err := config.ParseAmount(pool.AmountB)
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		out.Pools = append(out.Pools, GenesisPool{TokenA: a, TokenB: b, AmountA: amountA, AmountB: amountB})
	}
	for i, bal := range g.Balances {
		holder, err := config.ParseAddress(bal.Holder, false)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %d: %w", i, err)
		}
		token, err := config.ParseAddress(bal.Token, true)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %d: %w", i, err)
		}
		amount, err := config.ParseAmount(bal.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %d: %w", i, err)
		}
		out.Balances = append(out.Balances, GenesisBalance{Holder: holder, Token: token, Amount: amount})
	}
	return out, nil
}

func (n *Node) applyGenesis(g Genesis) error {
	for _, tok := range g.Tokens {
		if tok.Address == n.bank.WrappedToken() {
			continue
		}
		if err := n.bank.RegisterToken(tok.Address, tok.Symbol, tok.FeeBps); err != nil {
			return fmt.Errorf("genesis: register %s: %w", tok.Address.Hex(), err)
		}
	}
	for _, bal := range g.Balances {
		if err := n.credit(bal.Holder, bal.Token, bal.Amount); err != nil {
			return fmt.Errorf("genesis: credit %s: %w", bal.Holder.Hex(), err)
		}
	}
	for _, pool := range g.Pools {
		if err := n.credit(GenesisProvider, pool.TokenA, pool.AmountA); err != nil {
			return fmt.Errorf("genesis: fund pool: %w", err)
		}
		if err := n.credit(GenesisProvider, pool.TokenB, pool.AmountB); err != nil {
			return fmt.Errorf("genesis: fund pool: %w", err)
		}
		if _, err := n.exchange.AddLiquidity(GenesisProvider, pool.TokenA, pool.TokenB, pool.AmountA, pool.AmountB); err != nil {
			return fmt.Errorf("genesis: pool %s/%s: %w", pool.TokenA.Hex(), pool.TokenB.Hex(), err)
		}
	}
	n.logger.Info("genesis applied",
		"tokens", len(g.Tokens),
		"pools", len(g.Pools),
		"balances", len(g.Balances))
	return nil
}

// credit mints amount of token to holder. Wrapped currency is minted as
// currency and wrapped.
func (n *Node) credit(holder, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	switch token {
	case common.Address{}:
		return n.bank.MintNative(holder, amount)
	case n.bank.WrappedToken():
		if err := n.bank.MintNative(holder, amount); err != nil {
			return err
		}
		return n.bank.Wrap(holder, amount)
	default:
		return n.bank.Mint(token, holder, amount)
	}
}
