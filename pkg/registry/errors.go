package registry

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFunds is returned when an account cannot supply an amount
	// it has to pay into custody.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAlreadyRegistered is returned when registering a role already held.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrNotRegistered is returned when an account does not hold a required role.
	ErrNotRegistered = errors.New("not registered")
	// ErrInvalidKind is returned for an unknown oracle kind.
	ErrInvalidKind = errors.New("invalid oracle kind")
)

// InsufficientFundsError reports that Account could not cover Required,
// either because of its balance or its allowance to custody.
type InsufficientFundsError struct {
	Account  common.Address
	Required *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s cannot supply %s", e.Account.Hex(), e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// AlreadyRegisteredError reports a duplicate registration.
type AlreadyRegisteredError struct {
	Account common.Address
	Kind    model.OracleKind
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("%s is already registered as %s", e.Account.Hex(), e.Kind)
}

func (e *AlreadyRegisteredError) Is(target error) bool { return target == ErrAlreadyRegistered }

// NotRegisteredError reports a missing role.
type NotRegisteredError struct {
	Account common.Address
	Kind    model.OracleKind
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("%s is not registered as %s", e.Account.Hex(), e.Kind)
}

func (e *NotRegisteredError) Is(target error) bool { return target == ErrNotRegistered }
