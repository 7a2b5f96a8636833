// Package coordinator runs the task state machine.
//
// A requester pays for a task up front. Registered generators then respond
// with outputs, each gated by a proof-of-work nonce bound to the task and
// the responder. Once every generation slot is filled, registered validators
// submit one score per generation. The call that fills the last validation
// slot finalizes the task: it computes per-generation aggregates, rejects
// outliers and credits every payout to the escrow ledger.
//
//	None -> PendingGeneration -> PendingValidation -> Completed
//
// Tasks that request no validations complete as soon as the last generation
// arrives, paying every generator.
package coordinator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/escrow"
	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/metrics"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/pow"
	"github.com/dria-oracle/llm-oracle-go/pkg/registry"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/dria-oracle/llm-oracle-go/pkg/statistics"
	"github.com/dria-oracle/llm-oracle-go/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Coordinator accepts task requests, responses and validations.
type Coordinator struct {
	store *state.Store
	token token.Token
}

// New returns a coordinator over store collecting fees through tok.
func New(store *state.Store, tok token.Token) *Coordinator {
	return &Coordinator{store: store, token: tok}
}

// GetFee returns the total fee for a task with params under the current
// rates, and the per-response generator and validator fees.
func (c *Coordinator) GetFee(params model.TaskParameters) (total, generatorFee, validatorFee *big.Int) {
	_ = c.store.View(func(st *state.State) error {
		total, generatorFee, validatorFee = Fee(st.Coordinator.Fees, params)
		return nil
	})
	return total, generatorFee, validatorFee
}

// Request creates a task paid by caller. The total fee is pulled from caller
// into custody; caller must have approved custody for it.
func (c *Coordinator) Request(ctx context.Context, caller common.Address, protocol [32]byte, input, models []byte, params model.TaskParameters) (uint64, error) {
	var taskID uint64
	err := c.store.Update(func(tx *state.Tx) error {
		if err := CheckParameters(tx.Coordinator.Bounds, params); err != nil {
			return err
		}

		total, generatorFee, validatorFee := Fee(tx.Coordinator.Fees, params)
		if total.Sign() > 0 {
			ok, err := token.CanPull(ctx, c.token, caller, tx.Custody, total)
			if err != nil {
				return fmt.Errorf("check request funds: %w", err)
			}
			if !ok {
				return &registry.InsufficientFundsError{Account: caller, Required: total}
			}
			if err := c.token.TransferFrom(ctx, tx.Custody, caller, tx.Custody, total); err != nil {
				escrow.RecordPending(tx.State, model.TransferTaskFee, caller, total, err)
				return fmt.Errorf("pull task fee: %w", err)
			}
		}

		taskID = tx.NextTaskID
		tx.NextTaskID++
		tx.Tasks[taskID] = &model.Task{
			ID:           taskID,
			Requester:    caller,
			Protocol:     protocol,
			Input:        append([]byte(nil), input...),
			Models:       append([]byte(nil), models...),
			Parameters:   params,
			GeneratorFee: generatorFee,
			ValidatorFee: validatorFee,
			PlatformFee:  new(big.Int).Set(tx.Coordinator.Fees.Platform),
			Status:       model.StatusPendingGeneration,
			CreatedAt:    time.Now(),
		}
		tx.Emit(events.Request(taskID, caller, protocol))

		zap.L().Debug("task requested",
			zap.Uint64("taskID", taskID),
			zap.Stringer("requester", caller),
			zap.String("fee", total.String()))
		return nil
	})
	if err != nil {
		metrics.Rejected.WithLabelValues("request", reason(err)).Inc()
		return 0, err
	}
	metrics.TasksRequested.Inc()
	metrics.TasksPending.Inc()
	return taskID, nil
}

// Respond records caller's output for taskID. Filling the last generation
// slot moves the task to PendingValidation.
func (c *Coordinator) Respond(caller common.Address, taskID uint64, nonce *big.Int, output, metadata []byte) error {
	var completed bool
	err := c.store.Update(func(tx *state.Tx) error {
		task, err := requireStatus(tx.State, taskID, model.StatusPendingGeneration)
		if err != nil {
			return err
		}
		if !registry.IsRegistered(tx.State, caller, model.Generator) {
			return &registry.NotRegisteredError{Account: caller, Kind: model.Generator}
		}
		gens := tx.Generations[taskID]
		for _, g := range gens {
			if g.Responder == caller {
				return &AlreadyRespondedError{TaskID: taskID, Account: caller}
			}
		}
		if !pow.Verify(task.Parameters.Difficulty, taskID, task.Input, task.Requester, caller, nonce) {
			return &InvalidNonceError{TaskID: taskID, Nonce: nonce}
		}

		tx.Generations[taskID] = append(gens, &model.Generation{
			Responder:   caller,
			Nonce:       new(big.Int).Set(nonce),
			Output:      append([]byte(nil), output...),
			Metadata:    append([]byte(nil), metadata...),
			Score:       new(big.Int),
			SubmittedAt: time.Now(),
		})
		tx.Emit(events.Response(taskID, caller))

		if uint64(len(tx.Generations[taskID])) == task.Parameters.NumGenerations {
			if task.Parameters.NumValidations == 0 {
				finalize(tx, task)
				completed = true
			} else {
				task.Status = model.StatusPendingValidation
			}
		}
		zap.L().Debug("generation accepted",
			zap.Uint64("taskID", taskID),
			zap.Stringer("responder", caller),
			zap.Stringer("status", task.Status))
		return nil
	})
	if err != nil {
		metrics.Rejected.WithLabelValues("respond", reason(err)).Inc()
		return err
	}
	metrics.Responses.Inc()
	if completed {
		metrics.TasksCompleted.Inc()
		metrics.TasksPending.Dec()
	}
	return nil
}

// Validate records caller's scores for the generations of taskID, one score
// per generation in submission order. Filling the last validation slot
// finalizes the task.
func (c *Coordinator) Validate(caller common.Address, taskID uint64, nonce *big.Int, scores []*big.Int, metadata []byte) error {
	var completed bool
	err := c.store.Update(func(tx *state.Tx) error {
		task, err := requireStatus(tx.State, taskID, model.StatusPendingValidation)
		if err != nil {
			return err
		}
		if !registry.IsRegistered(tx.State, caller, model.Validator) {
			return &registry.NotRegisteredError{Account: caller, Kind: model.Validator}
		}
		for _, g := range tx.Generations[taskID] {
			if g.Responder == caller {
				return &AlreadyRespondedError{TaskID: taskID, Account: caller}
			}
		}
		vals := tx.Validations[taskID]
		for _, v := range vals {
			if v.Validator == caller {
				return &AlreadyRespondedError{TaskID: taskID, Account: caller}
			}
		}
		if uint64(len(scores)) != task.Parameters.NumGenerations {
			return &InvalidScoreCountError{TaskID: taskID, Have: len(scores), Want: task.Parameters.NumGenerations}
		}
		copied := make([]*big.Int, len(scores))
		for i, s := range scores {
			if s == nil || s.Sign() < 0 {
				return fmt.Errorf("%w: score %d of task %d", ErrInvalidScore, i, taskID)
			}
			copied[i] = new(big.Int).Set(s)
		}
		if !pow.Verify(task.Parameters.Difficulty, taskID, task.Input, task.Requester, caller, nonce) {
			return &InvalidNonceError{TaskID: taskID, Nonce: nonce}
		}

		tx.Validations[taskID] = append(vals, &model.Validation{
			Validator:   caller,
			Nonce:       new(big.Int).Set(nonce),
			Scores:      copied,
			Metadata:    append([]byte(nil), metadata...),
			SubmittedAt: time.Now(),
		})
		tx.Emit(events.Validation(taskID, caller))

		if uint64(len(tx.Validations[taskID])) == task.Parameters.NumValidations {
			finalize(tx, task)
			completed = true
		}
		zap.L().Debug("validation accepted",
			zap.Uint64("taskID", taskID),
			zap.Stringer("validator", caller),
			zap.Stringer("status", task.Status))
		return nil
	})
	if err != nil {
		metrics.Rejected.WithLabelValues("validate", reason(err)).Inc()
		return err
	}
	metrics.Validations.Inc()
	if completed {
		metrics.TasksCompleted.Inc()
		metrics.TasksPending.Dec()
	}
	return nil
}

// finalize settles a task whose slots are all filled. It runs exactly once,
// inside the update that fills the last slot.
//
// Each generation's aggregate is the inner mean of the scores validators gave
// it. A generation whose aggregate falls below mean - factor·stddev of all
// aggregates forfeits its fee to the requester. Validators are paid for every
// generation they scored; the platform fee goes to the treasury.
func finalize(tx *state.Tx, task *model.Task) {
	gens := tx.Generations[task.ID]
	vals := tx.Validations[task.ID]
	factor := tx.Coordinator.DeviationFactor

	if len(vals) > 0 {
		aggregates := make([]*big.Int, len(gens))
		for i, g := range gens {
			column := make([]*big.Int, len(vals))
			for j, v := range vals {
				column[j] = v.Scores[i]
			}
			g.Score = statistics.InnerMean(column)
			aggregates[i] = g.Score
		}

		stddev, mean := statistics.Stddev(aggregates)
		for _, g := range gens {
			if statistics.EligibleWithFactor(g.Score, mean, stddev, factor) {
				escrow.Credit(tx.State, g.Responder, task.GeneratorFee)
				continue
			}
			escrow.Credit(tx.State, task.Requester, task.GeneratorFee)
			metrics.IneligibleGenerations.Inc()
			zap.L().Debug("generation ineligible",
				zap.Uint64("taskID", task.ID),
				zap.Stringer("responder", g.Responder),
				zap.String("score", g.Score.String()),
				zap.String("lowerBound", statistics.LowerBound(mean, stddev, factor).String()))
		}

		validatorPay := new(big.Int).Mul(task.ValidatorFee, new(big.Int).SetUint64(task.Parameters.NumGenerations))
		for _, v := range vals {
			escrow.Credit(tx.State, v.Validator, validatorPay)
		}
	} else {
		for _, g := range gens {
			escrow.Credit(tx.State, g.Responder, task.GeneratorFee)
		}
	}

	escrow.Credit(tx.State, tx.Coordinator.Treasury, task.PlatformFee)
	task.Status = model.StatusCompleted
	tx.Emit(events.Completed(task.ID, task.Requester))

	zap.L().Debug("task completed",
		zap.Uint64("taskID", task.ID),
		zap.Int("generations", len(gens)),
		zap.Int("validations", len(vals)))
}

// requireStatus returns the task if it is in want.
func requireStatus(st *state.State, taskID uint64, want model.TaskStatus) (*model.Task, error) {
	task, ok := st.Tasks[taskID]
	actual := model.StatusNone
	if ok {
		actual = task.Status
	}
	if actual != want {
		return nil, &InvalidTaskStatusError{TaskID: taskID, Actual: actual, Expected: want}
	}
	return task, nil
}
