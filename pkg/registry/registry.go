// Package registry manages stake-gated oracle membership. Registering for a
// role pulls the current stake for that role into custody; unregistering
// credits exactly the stake that was locked back to the account's escrow.
package registry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/escrow"
	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/metrics"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/dria-oracle/llm-oracle-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Registry is the oracle membership table.
type Registry struct {
	store *state.Store
	token token.Token
}

// New returns a registry over store pulling stakes through tok.
func New(store *state.Store, tok token.Token) *Registry {
	return &Registry{store: store, token: tok}
}

// Register makes caller a member of kind after pulling the required stake
// from caller into custody. The caller must have approved custody for at
// least StakeAmount(kind).
func (r *Registry) Register(ctx context.Context, caller common.Address, kind model.OracleKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
	err := r.store.Update(func(tx *state.Tx) error {
		if IsRegistered(tx.State, caller, kind) {
			return &AlreadyRegisteredError{Account: caller, Kind: kind}
		}

		stake := tx.Registry.Stakes.For(kind)
		if stake.Sign() > 0 {
			ok, err := token.CanPull(ctx, r.token, caller, tx.Custody, stake)
			if err != nil {
				return fmt.Errorf("check stake funds: %w", err)
			}
			if !ok {
				return &InsufficientFundsError{Account: caller, Required: stake}
			}
			if err := r.token.TransferFrom(ctx, tx.Custody, caller, tx.Custody, stake); err != nil {
				escrow.RecordPending(tx.State, model.TransferStake, caller, stake, err)
				return fmt.Errorf("pull stake: %w", err)
			}
		}

		o := tx.Oracle(caller)
		o.Set(kind, true, stake)
		if o.RegisteredAt.IsZero() {
			o.RegisteredAt = time.Now()
		}
		tx.Emit(events.Registered(caller, kind))

		zap.L().Debug("oracle registered",
			zap.Stringer("account", caller),
			zap.Stringer("kind", kind),
			zap.String("stake", stake.String()))
		return nil
	})
	if err != nil {
		metrics.Rejected.WithLabelValues("register", reason(err)).Inc()
		return err
	}
	metrics.Registrations.WithLabelValues(kind.String()).Inc()
	return nil
}

// Unregister removes caller from kind and credits the stake it locked for
// kind to caller's escrow balance.
func (r *Registry) Unregister(caller common.Address, kind model.OracleKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
	err := r.store.Update(func(tx *state.Tx) error {
		o, ok := tx.Oracles[caller]
		if !ok || !o.Has(kind) {
			return &NotRegisteredError{Account: caller, Kind: kind}
		}

		stake := o.Stake(kind)
		escrow.Credit(tx.State, caller, stake)
		o.Set(kind, false, nil)
		tx.Emit(events.Unregistered(caller, kind))

		zap.L().Debug("oracle unregistered",
			zap.Stringer("account", caller),
			zap.Stringer("kind", kind),
			zap.String("refund", stake.String()))
		return nil
	})
	if err != nil {
		metrics.Rejected.WithLabelValues("unregister", reason(err)).Inc()
		return err
	}
	metrics.Unregistrations.WithLabelValues(kind.String()).Inc()
	return nil
}

// IsRegistered reports whether account currently holds kind.
func (r *Registry) IsRegistered(account common.Address, kind model.OracleKind) bool {
	var ok bool
	_ = r.store.View(func(st *state.State) error {
		ok = IsRegistered(st, account, kind)
		return nil
	})
	return ok
}

// IsRegistered reports whether account holds kind in st.
func IsRegistered(st *state.State, account common.Address, kind model.OracleKind) bool {
	o, ok := st.Oracles[account]
	return ok && o.Has(kind)
}

// Oracle returns a copy of the membership record of account.
func (r *Registry) Oracle(account common.Address) (model.Oracle, bool) {
	var (
		out   model.Oracle
		found bool
	)
	_ = r.store.View(func(st *state.State) error {
		o, ok := st.Oracles[account]
		if !ok {
			return nil
		}
		found = true
		out = *o
		out.GeneratorStake = o.Stake(model.Generator)
		out.ValidatorStake = o.Stake(model.Validator)
		return nil
	})
	return out, found
}

// StakeAmount returns the stake currently required to register for kind.
func (r *Registry) StakeAmount(kind model.OracleKind) *big.Int {
	var amt *big.Int
	_ = r.store.View(func(st *state.State) error {
		amt = st.Registry.Stakes.For(kind)
		return nil
	})
	return amt
}

// SetStakeAmounts changes the stakes required for future registrations.
func (r *Registry) SetStakeAmounts(caller common.Address, generator, validator *big.Int) error {
	if generator == nil || generator.Sign() < 0 || validator == nil || validator.Sign() < 0 {
		return fmt.Errorf("%w: stake amounts must be non-negative", escrow.ErrInvalidAmount)
	}
	return r.store.Update(func(tx *state.Tx) error {
		if err := tx.RequireOwner(caller); err != nil {
			return err
		}
		tx.Registry.Stakes = model.StakeAmounts{
			Generator: new(big.Int).Set(generator),
			Validator: new(big.Int).Set(validator),
		}
		zap.L().Info("stake amounts updated",
			zap.String("generator", generator.String()),
			zap.String("validator", validator.String()))
		return nil
	})
}
