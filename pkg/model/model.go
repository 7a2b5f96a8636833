package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OracleKind is the role an oracle registers for.
type OracleKind uint8

const (
	// Generator oracles produce candidate outputs for a task.
	Generator OracleKind = iota
	// Validator oracles score the outputs of generators.
	Validator
)

// String returns the human-readable role name.
func (k OracleKind) String() string {
	switch k {
	case Generator:
		return "generator"
	case Validator:
		return "validator"
	default:
		return fmt.Sprintf("OracleKind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known role.
func (k OracleKind) Valid() bool {
	return k == Generator || k == Validator
}

// ParseOracleKind converts a role name ("generator" / "validator") to an OracleKind.
func ParseOracleKind(s string) (OracleKind, error) {
	switch s {
	case "generator", "Generator":
		return Generator, nil
	case "validator", "Validator":
		return Validator, nil
	default:
		return 0, fmt.Errorf("unknown oracle kind %q", s)
	}
}

// TaskStatus is the lifecycle position of a task. It only moves forward.
type TaskStatus uint8

const (
	// StatusNone is the status of a task id that was never requested.
	StatusNone TaskStatus = iota
	// StatusPendingGeneration waits for generator responses.
	StatusPendingGeneration
	// StatusPendingValidation waits for validator scores.
	StatusPendingValidation
	// StatusCompleted is terminal; rewards have been credited.
	StatusCompleted
)

// String returns the status name.
func (s TaskStatus) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusPendingGeneration:
		return "PendingGeneration"
	case StatusPendingValidation:
		return "PendingValidation"
	case StatusCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("TaskStatus(%d)", uint8(s))
	}
}

// Oracle is the membership record of an account. It is created on the first
// registration and kept (with cleared flags) after unregistering.
type Oracle struct {
	Address        common.Address `json:"address"`
	Generator      bool           `json:"generator"`
	Validator      bool           `json:"validator"`
	GeneratorStake *big.Int       `json:"generator_stake"`
	ValidatorStake *big.Int       `json:"validator_stake"`
	RegisteredAt   time.Time      `json:"registered_at"`
}

// Has reports whether the oracle currently holds kind.
func (o *Oracle) Has(kind OracleKind) bool {
	if o == nil {
		return false
	}
	switch kind {
	case Generator:
		return o.Generator
	case Validator:
		return o.Validator
	}
	return false
}

// Stake returns the amount locked for kind, zero when none.
func (o *Oracle) Stake(kind OracleKind) *big.Int {
	if o == nil {
		return new(big.Int)
	}
	var s *big.Int
	switch kind {
	case Generator:
		s = o.GeneratorStake
	case Validator:
		s = o.ValidatorStake
	}
	if s == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s)
}

// Set toggles membership for kind and records the stake that was locked for it.
func (o *Oracle) Set(kind OracleKind, member bool, stake *big.Int) {
	switch kind {
	case Generator:
		o.Generator = member
		o.GeneratorStake = stake
	case Validator:
		o.Validator = member
		o.ValidatorStake = stake
	}
}

// TaskParameters are chosen by the requester.
type TaskParameters struct {
	// Difficulty is the number of leading zero bits the PoW digest must have.
	Difficulty uint8 `json:"difficulty"`
	// NumGenerations is the number of generator responses to collect.
	NumGenerations uint64 `json:"num_generations"`
	// NumValidations is the number of validator score vectors to collect.
	NumValidations uint64 `json:"num_validations"`
}

// StakeAmounts are the per-role stakes required to register.
type StakeAmounts struct {
	Generator *big.Int `json:"generator"`
	Validator *big.Int `json:"validator"`
}

// For returns the stake required for kind.
func (s StakeAmounts) For(kind OracleKind) *big.Int {
	switch kind {
	case Generator:
		return nonNil(s.Generator)
	case Validator:
		return nonNil(s.Validator)
	}
	return new(big.Int)
}

// FeeRates is the live fee configuration of the coordinator.
type FeeRates struct {
	Platform   *big.Int `json:"platform"`
	Generation *big.Int `json:"generation"`
	Validation *big.Int `json:"validation"`
}

// Clone returns a deep copy of r.
func (r FeeRates) Clone() FeeRates {
	return FeeRates{
		Platform:   nonNil(r.Platform),
		Generation: nonNil(r.Generation),
		Validation: nonNil(r.Validation),
	}
}

// Task is a computation request. Once stored, only Status changes.
type Task struct {
	ID         uint64         `json:"id"`
	Requester  common.Address `json:"requester"`
	Protocol   [32]byte       `json:"protocol"`
	Input      []byte         `json:"input"`
	Models     []byte         `json:"models"`
	Parameters TaskParameters `json:"parameters"`
	// Fee snapshot taken at request time.
	GeneratorFee *big.Int   `json:"generator_fee"`
	ValidatorFee *big.Int   `json:"validator_fee"`
	PlatformFee  *big.Int   `json:"platform_fee"`
	Status       TaskStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Generation is a generator's response to a task.
type Generation struct {
	Responder common.Address `json:"responder"`
	Nonce     *big.Int       `json:"nonce"`
	Output    []byte         `json:"output"`
	Metadata  []byte         `json:"metadata"`
	// Score is the aggregate validator score, set on finalization.
	Score       *big.Int  `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validation is a validator's score vector for all generations of a task.
type Validation struct {
	Validator   common.Address `json:"validator"`
	Nonce       *big.Int       `json:"nonce"`
	Scores      []*big.Int     `json:"scores"`
	Metadata    []byte         `json:"metadata"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// TransferKind names the purpose of a token transfer made by the node.
type TransferKind string

const (
	// TransferWithdrawal pays an escrow balance out of custody.
	TransferWithdrawal TransferKind = "withdrawal"
	// TransferStake pulls a registration stake into custody.
	TransferStake TransferKind = "stake"
	// TransferTaskFee pulls a task fee into custody.
	TransferTaskFee TransferKind = "task_fee"
)

// PendingTransfer is a token transfer that was sent but never confirmed.
// Until the owner resolves it, the funds are accounted on neither side.
type PendingTransfer struct {
	TxHash    common.Hash    `json:"tx_hash"`
	Kind      TransferKind   `json:"kind"`
	Account   common.Address `json:"account"`
	Amount    *big.Int       `json:"amount"`
	CreatedAt time.Time      `json:"created_at"`
}

// ProtocolTag converts a protocol name to the fixed 32-byte tag stored on a
// task. Names longer than 32 bytes are truncated.
func ProtocolTag(name string) [32]byte {
	var tag [32]byte
	copy(tag[:], name)
	return tag
}

// ProtocolName is the inverse of ProtocolTag with trailing NUL bytes removed.
func ProtocolName(tag [32]byte) string {
	n := len(tag)
	for n > 0 && tag[n-1] == 0 {
		n--
	}
	return string(tag[:n])
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Clone returns a deep copy of t.
func (t *Task) Clone() Task {
	out := *t
	out.Input = cloneBytes(t.Input)
	out.Models = cloneBytes(t.Models)
	out.GeneratorFee = nonNil(t.GeneratorFee)
	out.ValidatorFee = nonNil(t.ValidatorFee)
	out.PlatformFee = nonNil(t.PlatformFee)
	return out
}

// Clone returns a deep copy of g.
func (g *Generation) Clone() Generation {
	out := *g
	out.Nonce = nonNil(g.Nonce)
	out.Output = cloneBytes(g.Output)
	out.Metadata = cloneBytes(g.Metadata)
	out.Score = nonNil(g.Score)
	return out
}

// Clone returns a deep copy of v.
func (v *Validation) Clone() Validation {
	out := *v
	out.Nonce = nonNil(v.Nonce)
	out.Metadata = cloneBytes(v.Metadata)
	out.Scores = make([]*big.Int, len(v.Scores))
	for i, s := range v.Scores {
		out.Scores[i] = nonNil(s)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
