// Package events carries the notifications emitted by the registry, the
// escrow ledger and the coordinator to off-chain observers. Delivery is
// in-process over a go-ethereum event.Feed; Publisher forwards the same
// events to RabbitMQ.
package events

import (
	"math/big"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Kind names an event.
type Kind string

const (
	KindRegistered   Kind = "Registered"
	KindUnregistered Kind = "Unregistered"
	KindRequest      Kind = "Request"
	KindResponse     Kind = "Response"
	KindValidation   Kind = "Validation"
	KindCompleted    Kind = "Completed"
	KindWithdrawn    Kind = "Withdrawn"
)

// Event is a single notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind       Kind             `json:"kind"`
	TaskID     uint64           `json:"task_id,omitempty"`
	Account    common.Address   `json:"account"`
	OracleKind model.OracleKind `json:"oracle_kind"`
	Protocol   string           `json:"protocol,omitempty"`
	Amount     *big.Int         `json:"amount,omitempty"`
	Time       time.Time        `json:"time"`
}

// Registered is emitted when account gains the kind role.
func Registered(account common.Address, kind model.OracleKind) Event {
	return Event{Kind: KindRegistered, Account: account, OracleKind: kind, Time: time.Now()}
}

// Unregistered is emitted when account gives up the kind role.
func Unregistered(account common.Address, kind model.OracleKind) Event {
	return Event{Kind: KindUnregistered, Account: account, OracleKind: kind, Time: time.Now()}
}

// Request is emitted when requester creates task taskID.
func Request(taskID uint64, requester common.Address, protocol [32]byte) Event {
	return Event{Kind: KindRequest, TaskID: taskID, Account: requester, Protocol: model.ProtocolName(protocol), Time: time.Now()}
}

// Response is emitted when responder adds a generation to taskID.
func Response(taskID uint64, responder common.Address) Event {
	return Event{Kind: KindResponse, TaskID: taskID, Account: responder, Time: time.Now()}
}

// Validation is emitted when validator adds a score vector to taskID.
func Validation(taskID uint64, validator common.Address) Event {
	return Event{Kind: KindValidation, TaskID: taskID, Account: validator, Time: time.Now()}
}

// Completed is emitted once taskID has been finalized.
func Completed(taskID uint64, requester common.Address) Event {
	return Event{Kind: KindCompleted, TaskID: taskID, Account: requester, Time: time.Now()}
}

// Withdrawn is emitted when account redeems amount from escrow.
func Withdrawn(account common.Address, amount *big.Int) Event {
	return Event{Kind: KindWithdrawn, Account: account, Amount: new(big.Int).Set(amount), Time: time.Now()}
}

// Bus fans events out to subscribers. The zero value is ready to use.
//
// Send blocks until every subscriber has received the event, so subscribers
// should use buffered channels and drain them promptly.
type Bus struct {
	feed event.Feed
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe delivers future events to ch until the subscription is closed.
func (b *Bus) Subscribe(ch chan<- Event) event.Subscription {
	return b.feed.Subscribe(ch)
}

// Publish sends evs in order.
func (b *Bus) Publish(evs ...Event) {
	if b == nil {
		return
	}
	for _, ev := range evs {
		b.feed.Send(ev)
	}
}
