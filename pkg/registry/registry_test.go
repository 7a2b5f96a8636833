package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/dria-oracle/llm-oracle-go/pkg/escrow"
	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/dria-oracle/llm-oracle-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
)

var (
	owner   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	custody = common.HexToAddress("0x0000000000000000000000000000000000000002")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

const (
	generatorStake = 1000
	validatorStake = 500
)

type fixture struct {
	reg    *Registry
	store  *state.Store
	token  *token.Memory
	ledger *escrow.Ledger
	events chan events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := events.NewBus()
	ch := make(chan events.Event, 16)
	sub := bus.Subscribe(ch)
	t.Cleanup(sub.Unsubscribe)

	store := state.NewStore(state.New(owner, custody, owner), bus)
	tok := token.NewMemory()
	reg := New(store, tok)
	if err := reg.SetStakeAmounts(owner, big.NewInt(generatorStake), big.NewInt(validatorStake)); err != nil {
		t.Fatalf("SetStakeAmounts: %v", err)
	}
	return &fixture{reg: reg, store: store, token: tok, ledger: escrow.New(store, tok), events: ch}
}

// fund mints amount to account and approves custody for allowance.
func (f *fixture) fund(t *testing.T, account common.Address, amount, allowance int64) {
	t.Helper()
	ctx := context.Background()
	if err := f.token.Mint(account, big.NewInt(amount)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := f.token.Approve(ctx, account, custody, big.NewInt(allowance)); err != nil {
		t.Fatalf("Approve: %v", err)
	}
}

func TestRegister_ExactStake(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, generatorStake, generatorStake)

	if f.reg.IsRegistered(alice, model.Generator) {
		t.Fatal("registered before Register")
	}
	if err := f.reg.Register(context.Background(), alice, model.Generator); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !f.reg.IsRegistered(alice, model.Generator) {
		t.Fatal("not registered after Register")
	}
	if f.reg.IsRegistered(alice, model.Validator) {
		t.Fatal("registration leaked into the other kind")
	}

	held, _ := f.token.BalanceOf(context.Background(), custody)
	if held.Int64() != generatorStake {
		t.Fatalf("custody holds %s, want %d", held, generatorStake)
	}
	if ev := <-f.events; ev.Kind != events.KindRegistered || ev.Account != alice || ev.OracleKind != model.Generator {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRegister_InsufficientFunds(t *testing.T) {
	tests := []struct {
		name      string
		balance   int64
		allowance int64
	}{
		{"allowance one short", generatorStake, generatorStake - 1},
		{"balance one short", generatorStake - 1, generatorStake},
		{"nothing approved", generatorStake, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, alice, tt.balance, tt.allowance)

			err := f.reg.Register(context.Background(), alice, model.Generator)
			if !errors.Is(err, ErrInsufficientFunds) {
				t.Fatalf("expected ErrInsufficientFunds, got %v", err)
			}
			if f.reg.IsRegistered(alice, model.Generator) {
				t.Fatal("registered despite failure")
			}
			if _, ok := f.reg.Oracle(alice); ok {
				t.Fatal("failed registration created an oracle record")
			}
			bal, _ := f.token.BalanceOf(context.Background(), alice)
			if bal.Int64() != tt.balance {
				t.Fatalf("balance changed to %s", bal)
			}
		})
	}
}

func TestRegister_Twice(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 2*generatorStake, 2*generatorStake)
	ctx := context.Background()

	if err := f.reg.Register(ctx, alice, model.Generator); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := f.reg.Register(ctx, alice, model.Generator)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	var are *AlreadyRegisteredError
	if !errors.As(err, &are) || are.Account != alice {
		t.Fatalf("error does not carry the account: %v", err)
	}
	bal, _ := f.token.BalanceOf(ctx, alice)
	if bal.Int64() != generatorStake {
		t.Fatalf("second register pulled funds: balance %s", bal)
	}
}

func TestUnregister_NotRegistered(t *testing.T) {
	f := newFixture(t)
	err := f.reg.Unregister(bob, model.Validator)
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	var nre *NotRegisteredError
	if !errors.As(err, &nre) || nre.Account != bob {
		t.Fatalf("error does not carry the account: %v", err)
	}
}

func TestUnregister_RefundsExactStake(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, validatorStake, validatorStake)
	ctx := context.Background()

	if err := f.reg.Register(ctx, alice, model.Validator); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.reg.Unregister(alice, model.Validator); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if f.reg.IsRegistered(alice, model.Validator) {
		t.Fatal("still registered after Unregister")
	}
	if got := f.ledger.Balance(alice); got.Int64() != validatorStake {
		t.Fatalf("escrow = %s, want %d", got, validatorStake)
	}
	if err := f.reg.Unregister(alice, model.Validator); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("second Unregister: %v", err)
	}
	if got := f.ledger.Balance(alice); got.Int64() != validatorStake {
		t.Fatalf("escrow changed by failed Unregister: %s", got)
	}

	if _, err := f.ledger.WithdrawAll(ctx, alice); err != nil {
		t.Fatalf("WithdrawAll: %v", err)
	}
	bal, _ := f.token.BalanceOf(ctx, alice)
	if bal.Int64() != validatorStake {
		t.Fatalf("token balance after withdraw = %s", bal)
	}
}

func TestSetStakeAmounts_NotRetroactive(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, generatorStake, generatorStake)
	ctx := context.Background()

	if err := f.reg.Register(ctx, alice, model.Generator); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.reg.SetStakeAmounts(owner, big.NewInt(5*generatorStake), big.NewInt(validatorStake)); err != nil {
		t.Fatalf("SetStakeAmounts: %v", err)
	}
	if got := f.reg.StakeAmount(model.Generator); got.Int64() != 5*generatorStake {
		t.Fatalf("StakeAmount = %s", got)
	}
	if err := f.reg.Unregister(alice, model.Generator); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if got := f.ledger.Balance(alice); got.Int64() != generatorStake {
		t.Fatalf("refund = %s, want the original %d", got, generatorStake)
	}
}

func TestSetStakeAmounts_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	err := f.reg.SetStakeAmounts(alice, big.NewInt(1), big.NewInt(1))
	if !errors.Is(err, state.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := f.reg.StakeAmount(model.Validator); got.Int64() != validatorStake {
		t.Fatalf("stake changed by unauthorized caller: %s", got)
	}
}

func TestRegister_InvalidKind(t *testing.T) {
	f := newFixture(t)
	if err := f.reg.Register(context.Background(), alice, model.OracleKind(7)); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

// lostPull pulls the stake and then reports the transaction as unconfirmed.
type lostPull struct {
	*token.Memory
	hash common.Hash
}

func (l lostPull) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	if err := l.Memory.TransferFrom(ctx, spender, from, to, amount); err != nil {
		return err
	}
	return &token.UnconfirmedError{TxHash: l.hash, Err: context.DeadlineExceeded}
}

func TestRegister_UnconfirmedPullIsRecoverable(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, generatorStake, generatorStake)
	hash := common.HexToHash("0x5a1e")
	reg := New(f.store, lostPull{Memory: f.token, hash: hash})

	err := reg.Register(context.Background(), alice, model.Generator)
	if !errors.Is(err, token.ErrUnconfirmed) {
		t.Fatalf("expected ErrUnconfirmed, got %v", err)
	}
	if reg.IsRegistered(alice, model.Generator) {
		t.Fatal("registered on an unconfirmed pull")
	}

	pending := f.ledger.Pending()
	if len(pending) != 1 || pending[0].Kind != model.TransferStake || pending[0].Amount.Int64() != generatorStake {
		t.Fatalf("unexpected pending transfers %+v", pending)
	}
	if err := f.ledger.Resolve(owner, hash, true); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := f.ledger.Balance(alice); got.Int64() != generatorStake {
		t.Fatalf("escrow = %s, want %d", got, generatorStake)
	}
}
