package registry

import (
	"errors"

	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/dria-oracle/llm-oracle-go/pkg/token"
)

// reason maps an error to a short metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, token.ErrUnconfirmed):
		return "unconfirmed"
	case errors.Is(err, state.ErrUnsupportedVersion):
		return "unsupported_version"
	default:
		return "other"
	}
}
