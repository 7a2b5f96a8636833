package coordinator

import (
	"fmt"
	"math/big"

	"github.com/dria-oracle/llm-oracle-go/pkg/escrow"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// SetFees replaces the fee rates. Tasks already requested keep the rates
// they were created with.
func (c *Coordinator) SetFees(caller common.Address, platform, generation, validation *big.Int) error {
	for _, v := range []*big.Int{platform, generation, validation} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("%w: fees must be non-negative", escrow.ErrInvalidAmount)
		}
	}
	return c.store.Update(func(tx *state.Tx) error {
		if err := tx.RequireOwner(caller); err != nil {
			return err
		}
		tx.Coordinator.Fees = model.FeeRates{Platform: platform, Generation: generation, Validation: validation}.Clone()
		zap.L().Info("fees updated",
			zap.String("platform", platform.String()),
			zap.String("generation", generation.String()),
			zap.String("validation", validation.String()))
		return nil
	})
}

// SetParameterBounds replaces the accepted task parameter ranges. Every
// minimum must not exceed its maximum and at least one generation is always
// required.
func (c *Coordinator) SetParameterBounds(caller common.Address, bounds state.Bounds) error {
	lo, hi := bounds.Min, bounds.Max
	if lo.Difficulty > hi.Difficulty || lo.NumGenerations > hi.NumGenerations || lo.NumValidations > hi.NumValidations {
		return fmt.Errorf("%w: minimum exceeds maximum", ErrInvalidParameterRange)
	}
	if hi.NumGenerations == 0 {
		return fmt.Errorf("%w: at least one generation must be allowed", ErrInvalidParameterRange)
	}
	return c.store.Update(func(tx *state.Tx) error {
		if err := tx.RequireOwner(caller); err != nil {
			return err
		}
		tx.Coordinator.Bounds = bounds
		zap.L().Info("parameter bounds updated", zap.Any("bounds", bounds))
		return nil
	})
}

// SetDeviationFactor sets how many standard deviations below the mean a
// generation may score and still be paid.
func (c *Coordinator) SetDeviationFactor(caller common.Address, factor uint64) error {
	return c.store.Update(func(tx *state.Tx) error {
		if err := tx.RequireOwner(caller); err != nil {
			return err
		}
		tx.Coordinator.DeviationFactor = factor
		zap.L().Info("deviation factor updated", zap.Uint64("factor", factor))
		return nil
	})
}

// SetTreasury changes the account credited with platform fees.
func (c *Coordinator) SetTreasury(caller, treasury common.Address) error {
	return c.store.Update(func(tx *state.Tx) error {
		if err := tx.RequireOwner(caller); err != nil {
			return err
		}
		tx.Coordinator.Treasury = treasury
		zap.L().Info("treasury updated", zap.Stringer("treasury", treasury))
		return nil
	})
}

// TransferOwnership hands every administrative right to next.
func (c *Coordinator) TransferOwnership(caller, next common.Address) error {
	return c.store.TransferOwnership(caller, next)
}
