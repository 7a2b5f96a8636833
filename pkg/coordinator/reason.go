package coordinator

import (
	"errors"

	"github.com/dria-oracle/llm-oracle-go/pkg/registry"
	"github.com/dria-oracle/llm-oracle-go/pkg/state"
	"github.com/dria-oracle/llm-oracle-go/pkg/token"
)

var reasons = []struct {
	err   error
	label string
}{
	{ErrInvalidTaskStatus, "invalid_task_status"},
	{ErrAlreadyResponded, "already_responded"},
	{ErrInvalidNonce, "invalid_nonce"},
	{ErrInvalidScoreCount, "invalid_score_count"},
	{ErrInvalidScore, "invalid_score"},
	{ErrInvalidParameterRange, "invalid_parameter_range"},
	{registry.ErrNotRegistered, "not_registered"},
	{registry.ErrInsufficientFunds, "insufficient_funds"},
	{token.ErrUnconfirmed, "unconfirmed"},
	{state.ErrUnsupportedVersion, "unsupported_version"},
}

// reason maps an error to a short metrics label.
func reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}
