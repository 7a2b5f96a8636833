package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dria-oracle/llm-oracle-go/pkg/events"
	"github.com/dria-oracle/llm-oracle-go/pkg/model"
	"go.uber.org/zap"
)

// Record is the archived form of a completed task.
type Record struct {
	Task        model.Task         `json:"task"`
	Generations []model.Generation `json:"generations"`
	Validations []model.Validation `json:"validations"`
	ArchivedAt  time.Time          `json:"archived_at"`
}

// TaskSource exposes the task records to archive.
type TaskSource interface {
	Task(taskID uint64) (model.Task, bool)
	Generations(taskID uint64) []model.Generation
	Validations(taskID uint64) []model.Validation
}

// DefaultQueueSize is the number of completed tasks Run buffers for upload.
const DefaultQueueSize = 256

// Archiver uploads completed tasks to storage and remembers their URIs.
type Archiver struct {
	storage Storage
	source  TaskSource
	// QueueSize bounds the uploads Run keeps waiting. Zero means DefaultQueueSize.
	QueueSize int

	mu   sync.RWMutex
	uris map[uint64]string
}

// NewArchiver returns an archiver reading tasks from source.
func NewArchiver(storage Storage, source TaskSource) *Archiver {
	return &Archiver{storage: storage, source: source, uris: make(map[uint64]string)}
}

// Archive uploads the record of taskID and returns its URI. Only completed
// tasks are archived.
func (a *Archiver) Archive(ctx context.Context, taskID uint64) (string, error) {
	task, ok := a.source.Task(taskID)
	if !ok || task.Status != model.StatusCompleted {
		return "", fmt.Errorf("task %d is not completed", taskID)
	}
	rec := Record{
		Task:        task,
		Generations: a.source.Generations(taskID),
		Validations: a.source.Validations(taskID),
		ArchivedAt:  time.Now().UTC(),
	}
	uri, err := a.storage.UploadJSON(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("archive task %d: %w", taskID, err)
	}

	a.mu.Lock()
	a.uris[taskID] = uri
	a.mu.Unlock()

	zap.L().Info("task archived", zap.Uint64("taskID", taskID), zap.String("uri", uri))
	return uri, nil
}

// URI returns the archive location of taskID, if it was archived.
func (a *Archiver) URI(taskID uint64) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	uri, ok := a.uris[taskID]
	return uri, ok
}

// Load reads an archived record back.
func (a *Archiver) Load(ctx context.Context, uri string) (*Record, error) {
	raw, err := a.storage.ReadFile(ctx, uri)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode archived record: %w", err)
	}
	return &rec, nil
}

// Run archives every task completed on bus until ctx is cancelled. Uploads
// happen on a separate worker so that a slow backend never holds up event
// delivery; when QueueSize tasks are already waiting, further completions are
// dropped and logged. Upload failures are logged and skipped.
func (a *Archiver) Run(ctx context.Context, bus *events.Bus) error {
	ch := make(chan events.Event, 64)
	sub := bus.Subscribe(ch)
	defer sub.Unsubscribe()

	size := a.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	queue := make(chan uint64, size)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.upload(ctx, queue)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for {
		select {
		case ev := <-ch:
			if ev.Kind != events.KindCompleted {
				continue
			}
			select {
			case queue <- ev.TaskID:
			default:
				zap.L().Warn("archive queue full, dropping task", zap.Uint64("taskID", ev.TaskID))
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Archiver) upload(ctx context.Context, queue <-chan uint64) {
	for {
		select {
		case id := <-queue:
			if _, err := a.Archive(ctx, id); err != nil {
				zap.L().Error("failed to archive task", zap.Uint64("taskID", id), zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
