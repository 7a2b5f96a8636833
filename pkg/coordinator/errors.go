package coordinator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidTaskStatus is returned when a task is not in the status an
	// operation requires.
	ErrInvalidTaskStatus = errors.New("invalid task status")
	// ErrAlreadyResponded is returned when an account already holds a
	// generation or validation on a task.
	ErrAlreadyResponded = errors.New("already responded")
	// ErrInvalidNonce is returned when a proof-of-work nonce misses the target.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrInvalidScoreCount is returned when a score vector does not have one
	// score per generation.
	ErrInvalidScoreCount = errors.New("invalid score count")
	// ErrInvalidScore is returned for nil or negative scores.
	ErrInvalidScore = errors.New("invalid score")
	// ErrInvalidParameterRange is returned when task parameters fall outside
	// the configured bounds.
	ErrInvalidParameterRange = errors.New("invalid parameter range")
)

// InvalidTaskStatusError reports the status a task had and the one required.
type InvalidTaskStatusError struct {
	TaskID   uint64
	Actual   model.TaskStatus
	Expected model.TaskStatus
}

func (e *InvalidTaskStatusError) Error() string {
	return fmt.Sprintf("task %d: invalid status %s, expected %s", e.TaskID, e.Actual, e.Expected)
}

func (e *InvalidTaskStatusError) Is(target error) bool { return target == ErrInvalidTaskStatus }

// AlreadyRespondedError reports a second submission by Account on TaskID.
type AlreadyRespondedError struct {
	TaskID  uint64
	Account common.Address
}

func (e *AlreadyRespondedError) Error() string {
	return fmt.Sprintf("task %d: %s already responded", e.TaskID, e.Account.Hex())
}

func (e *AlreadyRespondedError) Is(target error) bool { return target == ErrAlreadyResponded }

// InvalidNonceError reports a nonce whose digest is above the task target.
type InvalidNonceError struct {
	TaskID uint64
	Nonce  *big.Int
}

func (e *InvalidNonceError) Error() string {
	return fmt.Sprintf("task %d: invalid nonce %v", e.TaskID, e.Nonce)
}

func (e *InvalidNonceError) Is(target error) bool { return target == ErrInvalidNonce }

// InvalidScoreCountError reports a score vector of the wrong length.
type InvalidScoreCountError struct {
	TaskID uint64
	Have   int
	Want   uint64
}

func (e *InvalidScoreCountError) Error() string {
	return fmt.Sprintf("task %d: got %d scores, want %d", e.TaskID, e.Have, e.Want)
}

func (e *InvalidScoreCountError) Is(target error) bool { return target == ErrInvalidScoreCount }

// InvalidParameterRangeError names the parameter outside [Min, Max].
type InvalidParameterRangeError struct {
	Parameter string
	Value     uint64
	Min       uint64
	Max       uint64
}

func (e *InvalidParameterRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Parameter, e.Value, e.Min, e.Max)
}

func (e *InvalidParameterRangeError) Is(target error) bool { return target == ErrInvalidParameterRange }
