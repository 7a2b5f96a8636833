package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/token"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrNoSigner is returned when a transaction must be sent from an account
// the ERC20 adapter holds no key for.
var ErrNoSigner = errors.New("no signer for account")

// receiptWaiter waits until a submitted transaction is mined.
type receiptWaiter interface {
	WaitForTransaction(ctx context.Context, txHash common.Hash, maxBackoff time.Duration) (*types.Receipt, error)
}

// ERC20 is a token.Token backed by an ERC-20 contract. Reads are eth_calls;
// writes are signed with the key registered for the acting account and
// waited on until mined. A write that was sent but could not be confirmed
// returns a token.UnconfirmedError.
type ERC20 struct {
	address  common.Address
	contract *bind.BoundContract
	waiter   receiptWaiter
	chainID  *big.Int

	mu      sync.RWMutex
	signers map[common.Address]*ecdsa.PrivateKey
	// MaxBackoff caps the receipt polling interval.
	MaxBackoff time.Duration
}

// NewERC20 binds the FET token at address through evm.
func NewERC20(evm *EVMClient, address common.Address) (*ERC20, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse token ABI: %w", err)
	}
	contract := bind.NewBoundContract(address, parsed, evm.Client, evm.Client, evm.Client)
	return newERC20(address, contract, evm, evm.ChainID), nil
}

func newERC20(address common.Address, contract *bind.BoundContract, waiter receiptWaiter, chainID *big.Int) *ERC20 {
	return &ERC20{
		address:    address,
		contract:   contract,
		waiter:     waiter,
		chainID:    chainID,
		signers:    make(map[common.Address]*ecdsa.PrivateKey),
		MaxBackoff: 30 * time.Second,
	}
}

// Address returns the token contract address.
func (t *ERC20) Address() common.Address {
	return t.address
}

// AddSigner registers pk for the account it controls and returns that account.
func (t *ERC20) AddSigner(pk *ecdsa.PrivateKey) (common.Address, error) {
	addr := GetAddressFromPrivateKeyECDSA(pk)
	if addr == nil {
		return common.Address{}, fmt.Errorf("invalid private key")
	}
	t.mu.Lock()
	t.signers[*addr] = pk
	t.mu.Unlock()
	return *addr, nil
}

// BalanceOf returns the token balance of owner.
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.callUint(ctx, "balanceOf", owner)
}

// Allowance returns how much spender may pull from owner.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callUint(ctx, "allowance", owner, spender)
}

// Approve sends approve(spender, amount) from owner.
func (t *ERC20) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	return t.transact(ctx, owner, "approve", spender, amount)
}

// Transfer sends transfer(to, amount) from from.
func (t *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return t.transact(ctx, from, "transfer", to, amount)
}

// TransferFrom sends transferFrom(from, to, amount) from spender.
func (t *ERC20) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	return t.transact(ctx, spender, "transferFrom", from, to, amount)
}

func (t *ERC20) callUint(ctx context.Context, method string, params ...any) (*big.Int, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (t *ERC20) transact(ctx context.Context, from common.Address, method string, params ...any) error {
	t.mu.RLock()
	pk, ok := t.signers[from]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrNoSigner, from.Hex())
	}

	opts, err := GetTransactOpts(t.chainID, pk)
	if err != nil {
		return err
	}
	opts.Context = ctx

	tx, err := t.contract.Transact(opts, method, params...)
	if err != nil {
		zap.L().Error("token transaction failed", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("%s: %w", method, err)
	}
	zap.L().Debug("token transaction sent",
		zap.String("method", method),
		zap.Stringer("from", from),
		zap.String("tx", tx.Hash().Hex()))

	if _, err := t.waiter.WaitForTransaction(ctx, tx.Hash(), t.MaxBackoff); err != nil {
		if errors.Is(err, ErrTxReverted) {
			return fmt.Errorf("%s: %w", method, err)
		}
		zap.L().Warn("token transaction not confirmed",
			zap.String("method", method),
			zap.String("tx", tx.Hash().Hex()),
			zap.Error(err))
		return fmt.Errorf("%s: %w", method, &token.UnconfirmedError{TxHash: tx.Hash(), Err: err})
	}
	return nil
}
