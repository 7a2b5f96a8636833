package coordinator

import (
	"math/big"

	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/ethereum/go-ethereum/common"
)

// Task returns a copy of task taskID. An unknown id yields a zero task with
// StatusNone and false.
func (c *Coordinator) Task(taskID uint64) (model.Task, bool) {
	var (
		out model.Task
		ok  bool
	)
	_ = c.store.View(func(st *state.State) error {
		t, found := st.Tasks[taskID]
		if found {
			out, ok = t.Clone(), true
		}
		return nil
	})
	return out, ok
}

// Status returns the status of taskID, StatusNone for unknown ids.
func (c *Coordinator) Status(taskID uint64) model.TaskStatus {
	t, _ := c.Task(taskID)
	return t.Status
}

// Generations returns copies of the generations of taskID in arrival order.
func (c *Coordinator) Generations(taskID uint64) []model.Generation {
	var out []model.Generation
	_ = c.store.View(func(st *state.State) error {
		gens := st.Generations[taskID]
		out = make([]model.Generation, len(gens))
		for i, g := range gens {
			out[i] = g.Clone()
		}
		return nil
	})
	return out
}

// Validations returns copies of the validations of taskID in arrival order.
func (c *Coordinator) Validations(taskID uint64) []model.Validation {
	var out []model.Validation
	_ = c.store.View(func(st *state.State) error {
		vals := st.Validations[taskID]
		out = make([]model.Validation, len(vals))
		for i, v := range vals {
			out[i] = v.Clone()
		}
		return nil
	})
	return out
}

// BestResponse returns the generation with the highest aggregate score of a
// completed task. Ties go to the earlier generation.
func (c *Coordinator) BestResponse(taskID uint64) (model.Generation, error) {
	var best model.Generation
	err := c.store.View(func(st *state.State) error {
		if _, err := requireStatus(st, taskID, model.StatusCompleted); err != nil {
			return err
		}
		gens := st.Generations[taskID]
		idx := 0
		for i, g := range gens {
			if g.Score.Cmp(gens[idx].Score) > 0 {
				idx = i
			}
		}
		best = gens[idx].Clone()
		return nil
	})
	return best, err
}

// NextTaskID returns the id the next request will receive.
func (c *Coordinator) NextTaskID() uint64 {
	var id uint64
	_ = c.store.View(func(st *state.State) error {
		id = st.NextTaskID
		return nil
	})
	return id
}

// Fees returns the current fee rates.
func (c *Coordinator) Fees() model.FeeRates {
	var rates model.FeeRates
	_ = c.store.View(func(st *state.State) error {
		rates = st.Coordinator.Fees.Clone()
		return nil
	})
	return rates
}

// Bounds returns the current task parameter bounds.
func (c *Coordinator) Bounds() state.Bounds {
	var b state.Bounds
	_ = c.store.View(func(st *state.State) error {
		b = st.Coordinator.Bounds
		return nil
	})
	return b
}

// DeviationFactor returns the number of standard deviations a generation may
// fall below the mean and still be paid.
func (c *Coordinator) DeviationFactor() uint64 {
	var f uint64
	_ = c.store.View(func(st *state.State) error {
		f = st.Coordinator.DeviationFactor
		return nil
	})
	return f
}

// Treasury returns the account credited with platform fees.
func (c *Coordinator) Treasury() common.Address {
	var a common.Address
	_ = c.store.View(func(st *state.State) error {
		a = st.Coordinator.Treasury
		return nil
	})
	return a
}

// EscrowBalance returns the redeemable balance of account.
func (c *Coordinator) EscrowBalance(account common.Address) *big.Int {
	var bal *big.Int
	_ = c.store.View(func(st *state.State) error {
		bal = new(big.Int)
		if b, ok := st.Escrow[account]; ok {
			bal.Set(b)
		}
		return nil
	})
	return bal
}
