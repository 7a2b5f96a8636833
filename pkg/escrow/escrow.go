// Package escrow implements the pull-payment ledger. Stake refunds and task
// rewards are credited to an account's escrow balance; the account later
// withdraws them from custody itself.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/metrics"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/dria-oracle/llm-oracle-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientBalance is returned when a withdrawal exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient escrow balance")
	// ErrInvalidAmount is returned for nil, negative or zero amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownTransfer is returned when resolving a transfer that is not pending.
	ErrUnknownTransfer = errors.New("unknown pending transfer")
)

// InsufficientBalanceError reports a withdrawal larger than the balance.
type InsufficientBalanceError struct {
	Account   common.Address
	Balance   *big.Int
	Requested *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient escrow balance for %s: have %s, requested %s",
		e.Account.Hex(), e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// Credit adds amount to the escrow balance of account. It is meant to be
// called from inside a state update; nil and non-positive amounts are ignored.
func Credit(st *state.State, account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	bal, ok := st.Escrow[account]
	if !ok {
		bal = new(big.Int)
		st.Escrow[account] = bal
	}
	bal.Add(bal, amount)
}

// Balance returns a copy of the escrow balance of account.
func Balance(st *state.State, account common.Address) *big.Int {
	if bal, ok := st.Escrow[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Ledger is the account-facing side of the escrow table.
type Ledger struct {
	store *state.Store
	token token.Token
}

// New returns a ledger paying out of the custody account of store via tok.
func New(store *state.Store, tok token.Token) *Ledger {
	return &Ledger{store: store, token: tok}
}

// Credit adds amount to the balance of account.
func (l *Ledger) Credit(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.store.Update(func(tx *state.Tx) error {
		Credit(tx.State, account, amount)
		return nil
	})
}

// Balance returns the redeemable balance of account.
func (l *Ledger) Balance(account common.Address) *big.Int {
	var bal *big.Int
	_ = l.store.View(func(st *state.State) error {
		bal = Balance(st, account)
		return nil
	})
	return bal
}

// Withdraw transfers amount from custody to caller. The balance is
// decremented before the transfer. It is restored if the transfer fails
// before being sent; a transfer that was sent but not confirmed keeps the
// debit and is recorded as pending until the owner resolves it.
func (l *Ledger) Withdraw(ctx context.Context, caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.store.Update(func(tx *state.Tx) error {
		bal := Balance(tx.State, caller)
		if bal.Cmp(amount) < 0 {
			metrics.Withdrawals.WithLabelValues("rejected").Inc()
			return &InsufficientBalanceError{Account: caller, Balance: bal, Requested: new(big.Int).Set(amount)}
		}

		entry := tx.Escrow[caller]
		entry.Sub(entry, amount)
		if err := l.token.Transfer(ctx, tx.Custody, caller, amount); err != nil {
			if RecordPending(tx.State, model.TransferWithdrawal, caller, amount, err) {
				metrics.Withdrawals.WithLabelValues("pending").Inc()
			} else {
				entry.Add(entry, amount)
				metrics.Withdrawals.WithLabelValues("failed").Inc()
				zap.L().Error("escrow withdrawal transfer failed",
					zap.Stringer("account", caller),
					zap.String("amount", amount.String()),
					zap.Error(err))
			}
			if entry.Sign() == 0 {
				delete(tx.Escrow, caller)
			}
			return fmt.Errorf("withdraw %s: %w", amount, err)
		}
		if entry.Sign() == 0 {
			delete(tx.Escrow, caller)
		}

		metrics.Withdrawals.WithLabelValues("ok").Inc()
		zap.L().Debug("escrow withdrawn",
			zap.Stringer("account", caller),
			zap.String("amount", amount.String()))
		tx.Emit(events.Withdrawn(caller, amount))
		return nil
	})
}

// WithdrawAll withdraws the whole balance of caller and returns the amount.
func (l *Ledger) WithdrawAll(ctx context.Context, caller common.Address) (*big.Int, error) {
	amount := l.Balance(caller)
	if amount.Sign() == 0 {
		return nil, &InsufficientBalanceError{Account: caller, Balance: amount, Requested: amount}
	}
	if err := l.Withdraw(ctx, caller, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// RecordPending stores the transfer behind err as pending when err reports a
// transfer that was sent but not confirmed. It reports whether it did.
func RecordPending(st *state.State, kind model.TransferKind, account common.Address, amount *big.Int, err error) bool {
	var uc *token.UnconfirmedError
	if !errors.As(err, &uc) {
		return false
	}
	st.Pending[uc.TxHash] = &model.PendingTransfer{
		TxHash:    uc.TxHash,
		Kind:      kind,
		Account:   account,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: time.Now(),
	}
	zap.L().Warn("transfer pending resolution",
		zap.String("tx", uc.TxHash.Hex()),
		zap.String("kind", string(kind)),
		zap.Stringer("account", account),
		zap.String("amount", amount.String()),
		zap.Error(uc.Err))
	return true
}

// Pending returns the unresolved transfers, oldest first.
func (l *Ledger) Pending() []model.PendingTransfer {
	var out []model.PendingTransfer
	_ = l.store.View(func(st *state.State) error {
		for _, p := range st.Pending {
			cp := *p
			cp.Amount = new(big.Int).Set(p.Amount)
			out = append(out, cp)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b model.PendingTransfer) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.TxHash.Cmp(b.TxHash)
	})
	return out
}

// Resolve settles the pending transfer txHash once the owner has checked the
// chain. mined reports whether the transaction moved the funds. A withdrawal
// that never landed is credited back; a stake or fee pull that did land is
// credited to the account's escrow, since no membership or task was recorded
// for it.
func (l *Ledger) Resolve(caller common.Address, txHash common.Hash, mined bool) error {
	return l.store.Update(func(tx *state.Tx) error {
		if err := tx.RequireOwner(caller); err != nil {
			return err
		}
		p, ok := tx.Pending[txHash]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTransfer, txHash.Hex())
		}
		refund := mined != (p.Kind == model.TransferWithdrawal)
		if refund {
			Credit(tx.State, p.Account, p.Amount)
		}
		delete(tx.Pending, txHash)

		zap.L().Info("pending transfer resolved",
			zap.String("tx", txHash.Hex()),
			zap.String("kind", string(p.Kind)),
			zap.Stringer("account", p.Account),
			zap.Bool("mined", mined),
			zap.Bool("credited", refund))
		return nil
	})
}
