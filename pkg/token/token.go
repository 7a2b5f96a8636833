// Package token defines the fungible-token collaborator consumed by the
// registry, the escrow ledger and the coordinator, and provides an in-memory
// ERC-20 implementation for tests, examples and local nodes.
package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientBalance is returned when an account cannot cover a transfer.
	ErrInsufficientBalance = errors.New("token: transfer amount exceeds balance")
	// ErrInsufficientAllowance is returned when a spender exceeds its allowance.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("token: invalid amount")
	// ErrUnconfirmed is matched by UnconfirmedError.
	ErrUnconfirmed = errors.New("token: transfer not confirmed")
)

// UnconfirmedError reports a transfer that was broadcast but whose outcome
// is unknown. The funds may or may not have moved; callers must not treat it
// as a failure that left balances untouched.
type UnconfirmedError struct {
	TxHash common.Hash
	Err    error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("transfer %s not confirmed: %v", e.TxHash.Hex(), e.Err)
}

func (e *UnconfirmedError) Is(target error) bool { return target == ErrUnconfirmed }

func (e *UnconfirmedError) Unwrap() error { return e.Err }

// Token is the ERC-20 surface used by the oracle components. The account
// acting in Transfer and Approve is passed explicitly; implementations that
// sign transactions reject accounts they hold no key for.
type Token interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
}

// CanPull reports whether spender may pull amount from owner, i.e. both the
// allowance and the balance of owner cover it.
func CanPull(ctx context.Context, t Token, owner, spender common.Address, amount *big.Int) (bool, error) {
	allowance, err := t.Allowance(ctx, owner, spender)
	if err != nil {
		return false, err
	}
	if allowance.Cmp(amount) < 0 {
		return false, nil
	}
	balance, err := t.BalanceOf(ctx, owner)
	if err != nil {
		return false, err
	}
	return balance.Cmp(amount) >= 0, nil
}

// Memory is a thread-safe in-memory ERC-20 ledger.
type Memory struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewMemory returns an empty in-memory token.
func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits amount to account out of thin air.
func (m *Memory) Mint(account common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance(account).Add(m.balance(account), amount)
	return nil
}

// BalanceOf returns the balance of owner.
func (m *Memory) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balance(owner)), nil
}

// Allowance returns how much spender may still pull from owner.
func (m *Memory) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.allowance(owner, spender)), nil
}

// Approve sets the allowance of spender over owner's tokens to amount.
func (m *Memory) Approve(_ context.Context, owner, spender common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowance(owner, spender).Set(amount)
	return nil
}

// Transfer moves amount from from to to.
func (m *Memory) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(from, to, amount)
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// spender's allowance.
func (m *Memory) TransferFrom(_ context.Context, spender, from, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	allowance := m.allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := m.move(from, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

func (m *Memory) move(from, to common.Address, amount *big.Int) error {
	fromBal := m.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	fromBal.Sub(fromBal, amount)
	m.balance(to).Add(m.balance(to), amount)
	zap.L().Debug("token transfer",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

func (m *Memory) balance(account common.Address) *big.Int {
	b, ok := m.balances[account]
	if !ok {
		b = new(big.Int)
		m.balances[account] = b
	}
	return b
}

func (m *Memory) allowance(owner, spender common.Address) *big.Int {
	byOwner, ok := m.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		m.allowances[owner] = byOwner
	}
	a, ok := byOwner[spender]
	if !ok {
		a = new(big.Int)
		byOwner[spender] = a
	}
	return a
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() >= 0
}
