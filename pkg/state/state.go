// Package state holds every table of the oracle system (membership, tasks,
// generation and validation slots, escrow balances, rate configuration and
// the task id counter) in a single versioned record guarded by one lock.
//
// Mutations run through Store.Update, one call per public operation. The
// callback must check all of its preconditions before touching state; an
// error return discards the events it emitted. Events are delivered after
// the lock is released.
package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// CurrentVersion is the layout version produced by this package.
const CurrentVersion uint64 = 2

var (
	// ErrUnauthorized is returned when a caller other than the owner invokes an
	// administrative operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnsupportedVersion is returned when state is not at CurrentVersion, or
	// when a migration target is unknown.
	ErrUnsupportedVersion = errors.New("unsupported state version")
)

// UnauthorizedError names the rejected caller.
type UnauthorizedError struct {
	Caller common.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s is not the owner", e.Caller.Hex())
}

func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// Bounds are the inclusive limits task parameters are checked against.
type Bounds struct {
	Min model.TaskParameters `json:"min"`
	Max model.TaskParameters `json:"max"`
}

// DefaultBounds returns the parameter limits used when none are configured.
func DefaultBounds() Bounds {
	return Bounds{
		Min: model.TaskParameters{Difficulty: 1, NumGenerations: 1, NumValidations: 0},
		Max: model.TaskParameters{Difficulty: 10, NumGenerations: 10, NumValidations: 10},
	}
}

// Registry is the configuration owned by the oracle registry.
type Registry struct {
	Stakes model.StakeAmounts `json:"stakes"`
}

// Coordinator is the configuration owned by the coordinator.
type Coordinator struct {
	Fees            model.FeeRates `json:"fees"`
	Bounds          Bounds         `json:"bounds"`
	DeviationFactor uint64         `json:"deviation_factor"`
	Treasury        common.Address `json:"treasury"`
}

// State is the whole persisted system.
type State struct {
	Version    uint64         `json:"version"`
	Owner      common.Address `json:"owner"`
	Custody    common.Address `json:"custody"`
	NextTaskID uint64         `json:"next_task_id"`

	Registry    Registry    `json:"registry"`
	Coordinator Coordinator `json:"coordinator"`

	Oracles     map[common.Address]*model.Oracle `json:"oracles"`
	Tasks       map[uint64]*model.Task           `json:"tasks"`
	Generations map[uint64][]*model.Generation   `json:"generations"`
	Validations map[uint64][]*model.Validation   `json:"validations"`
	Escrow      map[common.Address]*big.Int      `json:"escrow"`

	// Pending holds transfers awaiting manual resolution, by tx hash.
	Pending map[common.Hash]*model.PendingTransfer `json:"pending_transfers,omitempty"`
}

// New returns an empty state at CurrentVersion owned by owner. Funds are held
// by custody and platform fees are credited to treasury.
func New(owner, custody, treasury common.Address) *State {
	st := &State{
		Version:    CurrentVersion,
		Owner:      owner,
		Custody:    custody,
		NextTaskID: 1,
		Registry: Registry{
			Stakes: model.StakeAmounts{Generator: new(big.Int), Validator: new(big.Int)},
		},
		Coordinator: Coordinator{
			Fees:            model.FeeRates{}.Clone(),
			Bounds:          DefaultBounds(),
			DeviationFactor: 1,
			Treasury:        treasury,
		},
	}
	st.init()
	return st
}

func (st *State) init() {
	if st.Oracles == nil {
		st.Oracles = make(map[common.Address]*model.Oracle)
	}
	if st.Tasks == nil {
		st.Tasks = make(map[uint64]*model.Task)
	}
	if st.Generations == nil {
		st.Generations = make(map[uint64][]*model.Generation)
	}
	if st.Validations == nil {
		st.Validations = make(map[uint64][]*model.Validation)
	}
	if st.Escrow == nil {
		st.Escrow = make(map[common.Address]*big.Int)
	}
	if st.Pending == nil {
		st.Pending = make(map[common.Hash]*model.PendingTransfer)
	}
}

// RequireOwner returns an UnauthorizedError unless caller is the owner.
func (st *State) RequireOwner(caller common.Address) error {
	if caller != st.Owner {
		return &UnauthorizedError{Caller: caller}
	}
	return nil
}

// Oracle returns the membership record of account, creating an empty one.
func (st *State) Oracle(account common.Address) *model.Oracle {
	o, ok := st.Oracles[account]
	if !ok {
		o = &model.Oracle{Address: account}
		st.Oracles[account] = o
	}
	return o
}

// Tx is the view of State handed to an Update callback.
type Tx struct {
	*State
	events []events.Event
}

// Emit queues events for delivery once the update commits.
func (tx *Tx) Emit(evs ...events.Event) {
	tx.events = append(tx.events, evs...)
}

// Store serializes access to a State.
type Store struct {
	mu  sync.Mutex
	st  *State
	bus *events.Bus
}

// NewStore wraps st. Events emitted by updates are published on bus, which
// may be nil.
func NewStore(st *State, bus *events.Bus) *Store {
	st.init()
	return &Store{st: st, bus: bus}
}

// Bus returns the event bus of the store.
func (s *Store) Bus() *events.Bus {
	return s.bus
}

// Update runs fn with exclusive access to the state. It refuses to run
// against a state that has not been migrated to CurrentVersion.
func (s *Store) Update(fn func(tx *Tx) error) error {
	tx, err := s.apply(fn)
	if err != nil {
		return err
	}
	s.bus.Publish(tx.events...)
	return nil
}

func (s *Store) apply(fn func(tx *Tx) error) (*Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: state is at version %d, want %d", ErrUnsupportedVersion, s.st.Version, CurrentVersion)
	}
	tx := &Tx{State: s.st}
	if err := fn(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// View runs fn with shared access to the state. fn must not modify st or
// retain references into it.
func (s *Store) View(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Version returns the layout version of the held state.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Version
}

// Owner returns the current owner.
func (s *Store) Owner() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Owner
}

// TransferOwnership hands the owner role to next.
func (s *Store) TransferOwnership(caller, next common.Address) error {
	return s.Update(func(tx *Tx) error {
		if err := tx.RequireOwner(caller); err != nil {
			return err
		}
		tx.Owner = next
		zap.L().Info("ownership transferred",
			zap.Stringer("from", caller),
			zap.Stringer("to", next))
		return nil
	})
}
