package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var _ token.Token = (*ERC20)(nil)

// callBackend answers eth_call for balanceOf and allowance from fixed tables.
// Any other backend method panics through the nil embedded interface.
type callBackend struct {
	bind.ContractBackend
	abi        abi.ABI
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

func (b *callBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := b.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	var v *big.Int
	switch method.Name {
	case "balanceOf":
		v = b.balances[args[0].(common.Address)]
	case "allowance":
		v = b.allowances[[2]common.Address{args[0].(common.Address), args[1].(common.Address)}]
	default:
		return nil, fmt.Errorf("unexpected call %s", method.Name)
	}
	if v == nil {
		v = new(big.Int)
	}
	return method.Outputs.Pack(v)
}

func newTestERC20(t *testing.T, backend *callBackend) *ERC20 {
	t.Helper()
	parsed, err := TokenABI()
	if err != nil {
		t.Fatalf("TokenABI: %v", err)
	}
	backend.abi = parsed
	addr := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	contract := bind.NewBoundContract(addr, parsed, backend, backend, backend)
	return newERC20(addr, contract, nil, big.NewInt(1))
}

func TestERC20_Reads(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	backend := &callBackend{
		balances:   map[common.Address]*big.Int{owner: big.NewInt(1234)},
		allowances: map[[2]common.Address]*big.Int{{owner, spender}: big.NewInt(99)},
	}
	tok := newTestERC20(t, backend)
	ctx := context.Background()

	bal, err := tok.BalanceOf(ctx, owner)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal.Int64() != 1234 {
		t.Fatalf("balance = %s, want 1234", bal)
	}

	allowance, err := tok.Allowance(ctx, owner, spender)
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if allowance.Int64() != 99 {
		t.Fatalf("allowance = %s, want 99", allowance)
	}

	ok, err := token.CanPull(ctx, tok, owner, spender, big.NewInt(100))
	if err != nil || ok {
		t.Fatalf("CanPull(100) = %v, %v; want false", ok, err)
	}
}

func TestERC20_WritesNeedSigner(t *testing.T) {
	tok := newTestERC20(t, &callBackend{})
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000c0")

	err := tok.Transfer(context.Background(), stranger, stranger, big.NewInt(1))
	if !errors.Is(err, ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr, err := tok.AddSigner(pk)
	if err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	if addr != crypto.PubkeyToAddress(pk.PublicKey) {
		t.Fatalf("AddSigner returned %s", addr.Hex())
	}
	if _, err := tok.AddSigner(nil); err == nil {
		t.Fatal("expected error for nil key")
	}
}

// sendBackend accepts every transaction and records it.
type sendBackend struct {
	callBackend
	sent []*types.Transaction
}

func (b *sendBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{}, nil
}

func (b *sendBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (b *sendBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(b.sent)), nil
}

func (b *sendBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *sendBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 60000, nil
}

func (b *sendBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

// stuckWaiter never sees a receipt.
type stuckWaiter struct{ err error }

func (w stuckWaiter) WaitForTransaction(context.Context, common.Hash, time.Duration) (*types.Receipt, error) {
	return nil, w.err
}

func TestERC20_UnconfirmedTransfer(t *testing.T) {
	tests := []struct {
		name            string
		waitErr         error
		wantUnconfirmed bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"rpc failure", errors.New("connection reset"), true},
		{"reverted", fmt.Errorf("%w: 0x01", ErrTxReverted), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := TokenABI()
			if err != nil {
				t.Fatalf("TokenABI: %v", err)
			}
			backend := &sendBackend{}
			addr := common.HexToAddress("0x00000000000000000000000000000000000000fe")
			contract := bind.NewBoundContract(addr, parsed, backend, backend, backend)
			tok := newERC20(addr, contract, stuckWaiter{err: tt.waitErr}, big.NewInt(1))

			pk, _ := crypto.GenerateKey()
			from, _ := tok.AddSigner(pk)
			to := common.HexToAddress("0x00000000000000000000000000000000000000c0")

			err = tok.Transfer(context.Background(), from, to, big.NewInt(5))
			if len(backend.sent) != 1 {
				t.Fatalf("sent %d transactions, want 1", len(backend.sent))
			}
			var uc *token.UnconfirmedError
			if got := errors.As(err, &uc); got != tt.wantUnconfirmed {
				t.Fatalf("UnconfirmedError = %v, want %v (err %v)", got, tt.wantUnconfirmed, err)
			}
			if tt.wantUnconfirmed {
				if uc.TxHash != backend.sent[0].Hash() {
					t.Fatalf("tx hash = %s, want %s", uc.TxHash.Hex(), backend.sent[0].Hash().Hex())
				}
				if !errors.Is(err, tt.waitErr) {
					t.Fatalf("cause lost: %v", err)
				}
			} else if !errors.Is(err, ErrTxReverted) {
				t.Fatalf("expected ErrTxReverted, got %v", err)
			}
		})
	}
}
