package bank

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"limitbook/core/state"
)

// MaxFeeBps caps the transfer fee a token may charge.
const MaxFeeBps = 10_000

// Token describes a registered asset.
type Token struct {
	Address common.Address
	Symbol  string
	// FeeBps is deducted from every transfer and destroyed. Tokens with a
	// non-zero fee are the deflationary tokens the order book measures.
	FeeBps uint32
	Supply *big.Int
}

type tokenState struct {
	symbol string
	feeBps uint32
	supply *uint256.Int
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Ledger tracks native currency and token balances for every account. It is
// the single source of truth for custody; modules never hold balances of their
// own. Every mutation records its inverse in the journal.
type Ledger struct {
	journal    *state.Journal
	wrapped    common.Address
	native     map[common.Address]*uint256.Int
	tokens     map[common.Address]*tokenState
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[allowanceKey]*uint256.Int
}

// NewLedger creates an empty ledger whose wrapped-currency token lives at
// wrapped.
func NewLedger(journal *state.Journal, wrapped common.Address) *Ledger {
	l := &Ledger{
		journal:    journal,
		wrapped:    wrapped,
		native:     make(map[common.Address]*uint256.Int),
		tokens:     make(map[common.Address]*tokenState),
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[allowanceKey]*uint256.Int),
	}
	l.tokens[wrapped] = &tokenState{symbol: "WNATIVE", supply: new(uint256.Int)}
	return l
}

// WrappedToken returns the address of the wrapped-currency token.
func (l *Ledger) WrappedToken() common.Address { return l.wrapped }

// RegisterToken adds a token to the registry.
func (l *Ledger) RegisterToken(addr common.Address, symbol string, feeBps uint32) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("bank: token address required")
	}
	if feeBps > MaxFeeBps {
		return ErrInvalidFee
	}
	if _, ok := l.tokens[addr]; ok {
		return ErrTokenExists
	}
	l.tokens[addr] = &tokenState{
		symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		feeBps: feeBps,
		supply: new(uint256.Int),
	}
	l.journal.Record(func() { delete(l.tokens, addr) })
	return nil
}

// Token returns the registry entry for addr.
func (l *Ledger) Token(addr common.Address) (Token, bool) {
	tok, ok := l.tokens[addr]
	if !ok {
		return Token{}, false
	}
	return Token{Address: addr, Symbol: tok.symbol, FeeBps: tok.feeBps, Supply: tok.supply.ToBig()}, true
}

// IsToken reports whether addr is a registered token.
func (l *Ledger) IsToken(addr common.Address) bool {
	_, ok := l.tokens[addr]
	return ok
}

// NativeBalance returns the currency balance of addr.
func (l *Ledger) NativeBalance(addr common.Address) *big.Int {
	if bal, ok := l.native[addr]; ok {
		return bal.ToBig()
	}
	return big.NewInt(0)
}

// BalanceOf returns the token balance of holder.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	if bal, ok := l.balances[token][holder]; ok {
		return bal.ToBig()
	}
	return big.NewInt(0)
}

// Allowance returns how much spender may still move on behalf of owner.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	if v, ok := l.allowances[token][allowanceKey{owner, spender}]; ok {
		return v.ToBig()
	}
	return big.NewInt(0)
}

// TransferFee returns the amount destroyed when amount of token is moved.
func (l *Ledger) TransferFee(token common.Address, amount *big.Int) *big.Int {
	tok, ok := l.tokens[token]
	if !ok || tok.feeBps == 0 || amount == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(tok.feeBps)))
	return fee.Div(fee, big.NewInt(MaxFeeBps))
}

// MintNative credits new currency to addr.
func (l *Ledger) MintNative(addr common.Address, amount *big.Int) error {
	amt, err := toUint(amount)
	if err != nil {
		return err
	}
	return l.creditNative(addr, amt)
}

// TransferNative moves currency between accounts.
func (l *Ledger) TransferNative(from, to common.Address, amount *big.Int) error {
	amt, err := toUint(amount)
	if err != nil {
		return err
	}
	if amt.IsZero() || from == to {
		return nil
	}
	if err := l.debitNative(from, amt); err != nil {
		return err
	}
	return l.creditNative(to, amt)
}

// Mint creates amount of token for to.
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	tok, ok := l.tokens[token]
	if !ok {
		return ErrUnknownToken
	}
	amt, err := toUint(amount)
	if err != nil {
		return err
	}
	supply, overflow := new(uint256.Int).AddOverflow(tok.supply, amt)
	if overflow {
		return ErrOverflow
	}
	if err := l.creditToken(token, to, amt); err != nil {
		return err
	}
	l.setSupply(tok, supply)
	return nil
}

// Burn destroys amount of token held by from.
func (l *Ledger) Burn(token, from common.Address, amount *big.Int) error {
	tok, ok := l.tokens[token]
	if !ok {
		return ErrUnknownToken
	}
	amt, err := toUint(amount)
	if err != nil {
		return err
	}
	if err := l.debitToken(token, from, amt); err != nil {
		return err
	}
	l.setSupply(tok, new(uint256.Int).Sub(tok.supply, amt))
	return nil
}

// Transfer moves amount of token from one holder to another and returns what
// the recipient actually received after the token's transfer fee.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) (*big.Int, error) {
	tok, ok := l.tokens[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	amt, err := toUint(amount)
	if err != nil {
		return nil, err
	}
	if err := l.debitToken(token, from, amt); err != nil {
		return nil, err
	}
	received := amt.Clone()
	if tok.feeBps > 0 && !amt.IsZero() {
		fee := new(uint256.Int).Mul(amt, uint256.NewInt(uint64(tok.feeBps)))
		fee.Div(fee, uint256.NewInt(MaxFeeBps))
		received.Sub(received, fee)
		l.setSupply(tok, new(uint256.Int).Sub(tok.supply, fee))
	}
	if err := l.creditToken(token, to, received); err != nil {
		return nil, err
	}
	return received.ToBig(), nil
}

// Approve sets the allowance of spender over owner's token balance.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if _, ok := l.tokens[token]; !ok {
		return ErrUnknownToken
	}
	amt, err := toUint(amount)
	if err != nil {
		return err
	}
	l.setAllowance(token, allowanceKey{owner, spender}, amt)
	return nil
}

// TransferFrom moves tokens on behalf of from, consuming spender's allowance.
func (l *Ledger) TransferFrom(token, spender, from, to common.Address, amount *big.Int) (*big.Int, error) {
	if _, ok := l.tokens[token]; !ok {
		return nil, ErrUnknownToken
	}
	amt, err := toUint(amount)
	if err != nil {
		return nil, err
	}
	key := allowanceKey{from, spender}
	allowed := l.allowances[token][key]
	if allowed == nil || allowed.Lt(amt) {
		return nil, ErrInsufficientAllowance
	}
	l.setAllowance(token, key, new(uint256.Int).Sub(allowed, amt))
	return l.Transfer(token, from, to, amount)
}

// Wrap converts currency held by addr into the wrapped-currency token.
func (l *Ledger) Wrap(addr common.Address, amount *big.Int) error {
	amt, err := toUint(amount)
	if err != nil {
		return err
	}
	if err := l.debitNative(addr, amt); err != nil {
		return err
	}
	return l.Mint(l.wrapped, addr, amount)
}

// Unwrap converts wrapped-currency tokens held by addr back into currency.
func (l *Ledger) Unwrap(addr common.Address, amount *big.Int) error {
	if err := l.Burn(l.wrapped, addr, amount); err != nil {
		return err
	}
	amt, _ := toUint(amount)
	return l.creditNative(addr, amt)
}

func toUint(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

func (l *Ledger) creditNative(addr common.Address, amt *uint256.Int) error {
	current := l.native[addr]
	if current == nil {
		current = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amt)
	if overflow {
		return ErrOverflow
	}
	l.setNative(addr, next)
	return nil
}

func (l *Ledger) debitNative(addr common.Address, amt *uint256.Int) error {
	current := l.native[addr]
	if current == nil {
		current = new(uint256.Int)
	}
	if current.Lt(amt) {
		return fmt.Errorf("%w: currency of %s", ErrInsufficientBalance, addr.Hex())
	}
	l.setNative(addr, new(uint256.Int).Sub(current, amt))
	return nil
}

func (l *Ledger) creditToken(token, addr common.Address, amt *uint256.Int) error {
	current := l.balances[token][addr]
	if current == nil {
		current = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amt)
	if overflow {
		return ErrOverflow
	}
	l.setBalance(token, addr, next)
	return nil
}

func (l *Ledger) debitToken(token, addr common.Address, amt *uint256.Int) error {
	current := l.balances[token][addr]
	if current == nil {
		current = new(uint256.Int)
	}
	if current.Lt(amt) {
		return fmt.Errorf("%w: token %s of %s", ErrInsufficientBalance, token.Hex(), addr.Hex())
	}
	l.setBalance(token, addr, new(uint256.Int).Sub(current, amt))
	return nil
}

func (l *Ledger) setNative(addr common.Address, next *uint256.Int) {
	prev, had := l.native[addr]
	l.native[addr] = next
	l.journal.Record(func() {
		if had {
			l.native[addr] = prev
		} else {
			delete(l.native, addr)
		}
	})
}

func (l *Ledger) setBalance(token, addr common.Address, next *uint256.Int) {
	holders := l.balances[token]
	if holders == nil {
		holders = make(map[common.Address]*uint256.Int)
		l.balances[token] = holders
	}
	prev, had := holders[addr]
	holders[addr] = next
	l.journal.Record(func() {
		if had {
			holders[addr] = prev
		} else {
			delete(holders, addr)
		}
	})
}

func (l *Ledger) setAllowance(token common.Address, key allowanceKey, next *uint256.Int) {
	approvals := l.allowances[token]
	if approvals == nil {
		approvals = make(map[allowanceKey]*uint256.Int)
		l.allowances[token] = approvals
	}
	prev, had := approvals[key]
	approvals[key] = next
	l.journal.Record(func() {
		if had {
			approvals[key] = prev
		} else {
			delete(approvals, key)
		}
	})
}

func (l *Ledger) setSupply(tok *tokenState, next *uint256.Int) {
	prev := tok.supply
	tok.supply = next
	l.journal.Record(func() { tok.supply = prev })
}
