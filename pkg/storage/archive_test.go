package storage

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"github.com/ethereum/go-ethereum/common"
)

type fakeSource struct {
	tasks map[uint64]model.Task
}

func (f fakeSource) Task(id uint64) (model.Task, bool) {
	t, ok := f.tasks[id]
	return t, ok
}

func (f fakeSource) Generations(uint64) []model.Generation {
	return []model.Generation{{Responder: common.HexToAddress("0xa1"), Output: []byte("4"), Score: big.NewInt(6)}}
}

func (f fakeSource) Validations(uint64) []model.Validation {
	return []model.Validation{{Validator: common.HexToAddress("0xb0"), Scores: []*big.Int{big.NewInt(6)}}}
}

func newSource() fakeSource {
	return fakeSource{tasks: map[uint64]model.Task{
		1: {ID: 1, Status: model.StatusCompleted, Input: []byte("2+2")},
		2: {ID: 2, Status: model.StatusPendingValidation},
	}}
}

func TestArchiver_ArchiveAndLoad(t *testing.T) {
	c := &Client{ipfs: &fakeIPFS{}}
	a := NewArchiver(c, newSource())
	ctx := context.Background()

	uri, err := a.Archive(ctx, 1)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if got, ok := a.URI(1); !ok || got != uri {
		t.Fatalf("URI(1) = %q, %v", got, ok)
	}

	rec, err := a.Load(ctx, uri)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Task.ID != 1 || string(rec.Task.Input) != "2+2" {
		t.Fatalf("task not restored: %+v", rec.Task)
	}
	if len(rec.Generations) != 1 || rec.Generations[0].Score.Int64() != 6 {
		t.Fatalf("generations not restored: %+v", rec.Generations)
	}
}

func TestArchiver_SkipsUnfinishedTasks(t *testing.T) {
	a := NewArchiver(&Client{ipfs: &fakeIPFS{}}, newSource())
	for _, id := range []uint64{2, 3} {
		if _, err := a.Archive(context.Background(), id); err == nil {
			t.Fatalf("Archive(%d) succeeded", id)
		}
	}
}

func TestArchiver_RunArchivesCompletedEvents(t *testing.T) {
	a := NewArchiver(&Client{ipfs: &fakeIPFS{}}, newSource())
	bus := events.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx, bus) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.Publish(events.Response(1, common.Address{}), events.Completed(1, common.Address{}))
		if _, ok := a.URI(1); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("completed task was not archived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// stalledStorage accepts uploads but never finishes them until ctx ends.
type stalledStorage struct {
	started chan struct{}
	once    sync.Once
}

func (s *stalledStorage) ReadFile(context.Context, string) ([]byte, error) {
	return nil, errors.New("not stored")
}

func (s *stalledStorage) UploadJSON(ctx context.Context, _ any) (string, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

func TestArchiver_RunDoesNotBlockPublishers(t *testing.T) {
	st := &stalledStorage{started: make(chan struct{})}
	a := NewArchiver(st, newSource())
	a.QueueSize = 1
	bus := events.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx, bus) }()

	deadline := time.After(2 * time.Second)
wait:
	for {
		bus.Publish(events.Completed(1, common.Address{}))
		select {
		case <-st.started:
			break wait
		case <-deadline:
			t.Fatal("archiver never started an upload")
		case <-time.After(10 * time.Millisecond):
		}
	}

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < 500; i++ {
			bus.Publish(events.Completed(1, common.Address{}))
		}
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked behind a stalled upload")
	}

	cancel()
	if err := <-runErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
