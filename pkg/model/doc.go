// Package model defines the records of the LLM oracle network.
//
// # Oracles
//
// An Oracle is an account that staked tokens to act as a Generator, a
// Validator, or both:
//
//	type Oracle struct {
//		Address        common.Address // account
//		Generator      bool           // holds the generator role
//		Validator      bool           // holds the validator role
//		GeneratorStake *big.Int       // stake locked for the generator role
//		ValidatorStake *big.Int       // stake locked for the validator role
//		RegisteredAt   time.Time      // first registration
//	}
//
// The record is never deleted; unregistering clears the role flag and the
// recorded stake.
//
// # Tasks
//
// A Task carries the requester's opaque input and model list, the
// TaskParameters (PoW difficulty, number of generations and validations) and a
// snapshot of the fee rates at request time:
//
//	task.GeneratorFee // paid to each eligible generator
//	task.ValidatorFee // paid per generation to each validator
//	task.PlatformFee  // paid to the treasury
//
// Task status only moves forward:
//
//	StatusNone -> StatusPendingGeneration -> StatusPendingValidation -> StatusCompleted
//
// # Generations and Validations
//
// Generations and Validations are appended to a task in arrival order and
// addressed by their position (0..N-1). A Validation holds one score per
// generation. After finalization every Generation carries its aggregate
// Score.
//
// # Protocol Tags
//
// Requests are tagged with a 32-byte protocol identifier. ProtocolTag and
// ProtocolName convert between the tag and a readable name:
//
//	tag := model.ProtocolTag("swan/0.1.0")
//	model.ProtocolName(tag) // "swan/0.1.0"
package model
