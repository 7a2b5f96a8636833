package coordinator

import (
	"math/big"

	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
)

// Fee computes the cost of a task under rates:
//
//	total = platform + generation·G + validation·G·V
//
// generatorFee and validatorFee are the per-response rates.
func Fee(rates model.FeeRates, params model.TaskParameters) (total, generatorFee, validatorFee *big.Int) {
	rates = rates.Clone()
	g := new(big.Int).SetUint64(params.NumGenerations)
	v := new(big.Int).SetUint64(params.NumValidations)

	total = new(big.Int).Set(rates.Platform)
	total.Add(total, new(big.Int).Mul(rates.Generation, g))
	total.Add(total, new(big.Int).Mul(new(big.Int).Mul(rates.Validation, g), v))
	return total, rates.Generation, rates.Validation
}

// CheckParameters reports the first parameter of p outside bounds.
func CheckParameters(bounds state.Bounds, p model.TaskParameters) error {
	checks := []struct {
		name          string
		value, lo, hi uint64
	}{
		{"difficulty", uint64(p.Difficulty), uint64(bounds.Min.Difficulty), uint64(bounds.Max.Difficulty)},
		{"numGenerations", p.NumGenerations, bounds.Min.NumGenerations, bounds.Max.NumGenerations},
		{"numValidations", p.NumValidations, bounds.Min.NumValidations, bounds.Max.NumValidations},
	}
	for _, c := range checks {
		if c.value < c.lo || c.value > c.hi {
			return &InvalidParameterRangeError{Parameter: c.name, Value: c.value, Min: c.lo, Max: c.hi}
		}
	}
	if p.NumGenerations == 0 {
		return &InvalidParameterRangeError{Parameter: "numGenerations", Value: 0, Min: 1, Max: bounds.Max.NumGenerations}
	}
	return nil
}
