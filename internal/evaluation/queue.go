package evaluation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

const historyLimit = 50

var (
	ErrQueueFull     = errors.New("evaluation queue is full")
	ErrAlreadyQueued = errors.New("evaluation is already queued or processing")
)

const (
	QueueStatusQueued     = "queued"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// QueueItem tracks one document evaluation through the queue. Position
// is 1-based for waiting items and 0 once processing starts.
type QueueItem struct {
	EvaluationID string     `json:"evaluation_id"`
	DocID        string     `json:"doc_id"`
	Status       string     `json:"status"`
	Position     int        `json:"position"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// QueueSnapshot is the externally visible queue state.
type QueueSnapshot struct {
	Pending    []QueueItem `json:"pending"`
	Processing []QueueItem `json:"processing"`
	History    []QueueItem `json:"history"`
	Workers    int         `json:"workers"`
	MaxPending int         `json:"max_pending"`
}

// DocumentEvaluator is the slice of the pipeline the queue drives.
type DocumentEvaluator interface {
	EvaluateDocument(ctx context.Context, evaluationID string, onProgress ProgressFunc) error
}

// Queue serializes document evaluations behind a small worker pool so
// a burst of requests cannot multiply concurrent LLM load.
type Queue struct {
	evaluator   DocumentEvaluator
	onProgress  ProgressFunc
	workers     int
	maxPending  int
	itemTimeout time.Duration

	mu      sync.Mutex
	pending []*QueueItem
	items   map[string]*QueueItem
	history []*QueueItem

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewQueue(evaluator DocumentEvaluator, cfg config.EvaluationConfig, onProgress ProgressFunc) *Queue {
	workers := cfg.QueueWorkers
	if workers <= 0 {
		workers = 2
	}
	maxPending := cfg.QueueMaxPending
	if maxPending <= 0 {
		maxPending = 100
	}
	timeout := time.Duration(cfg.ItemTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	return &Queue{
		evaluator:   evaluator,
		onProgress:  onProgress,
		workers:     workers,
		maxPending:  maxPending,
		itemTimeout: timeout,
		items:       make(map[string]*QueueItem),
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	logger.Info("Evaluation queue started",
		zap.Int("workers", q.workers),
		zap.Int("max_pending", q.maxPending),
		zap.Duration("item_timeout", q.itemTimeout),
	)
}

// Shutdown stops accepting work and waits for in-flight evaluations,
// up to the context deadline.
func (q *Queue) Shutdown(ctx context.Context) error {
	close(q.stop)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue adds an evaluation and returns its 1-based queue position.
func (q *Queue) Enqueue(evaluationID, docID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.items[evaluationID]; ok {
		if existing.Status == QueueStatusQueued || existing.Status == QueueStatusProcessing {
			return 0, ErrAlreadyQueued
		}
	}
	if len(q.pending) >= q.maxPending {
		return 0, ErrQueueFull
	}

	item := &QueueItem{
		EvaluationID: evaluationID,
		DocID:        docID,
		Status:       QueueStatusQueued,
		EnqueuedAt:   time.Now(),
	}
	q.pending = append(q.pending, item)
	q.items[evaluationID] = item
	metrics.QueueDepth.Set(float64(len(q.pending)))

	position := len(q.pending)
	q.signal()

	logger.Info("Evaluation enqueued",
		zap.String("evaluation_id", evaluationID),
		zap.String("doc_id", docID),
		zap.Int("position", position),
	)

	return position, nil
}

// Remove drops a still-waiting evaluation from the queue. Items that
// already started cannot be removed.
func (q *Queue) Remove(evaluationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[evaluationID]
	if !ok || item.Status != QueueStatusQueued {
		return false
	}

	for i, pending := range q.pending {
		if pending.EvaluationID == evaluationID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	delete(q.items, evaluationID)
	metrics.QueueDepth.Set(float64(len(q.pending)))

	return true
}

// Position reports where an evaluation stands: its 1-based position
// while waiting, 0 while processing.
func (q *Queue) Position(evaluationID string) (int, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[evaluationID]
	if !ok {
		return 0, "", false
	}

	if item.Status == QueueStatusQueued {
		for i, pending := range q.pending {
			if pending.EvaluationID == evaluationID {
				return i + 1, item.Status, true
			}
		}
	}

	return 0, item.Status, true
}

// Snapshot returns the current queue state with positions filled in.
func (q *Queue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := QueueSnapshot{
		Workers:    q.workers,
		MaxPending: q.maxPending,
		Pending:    make([]QueueItem, 0, len(q.pending)),
		Processing: make([]QueueItem, 0, q.workers),
		History:    make([]QueueItem, 0, len(q.history)),
	}

	for i, item := range q.pending {
		copied := *item
		copied.Position = i + 1
		snapshot.Pending = append(snapshot.Pending, copied)
	}
	for _, item := range q.items {
		if item.Status == QueueStatusProcessing {
			snapshot.Processing = append(snapshot.Processing, *item)
		}
	}
	for _, item := range q.history {
		snapshot.History = append(snapshot.History, *item)
	}

	return snapshot
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		item := q.next()
		if item == nil {
			return
		}
		q.process(item)
	}
}

func (q *Queue) next() *QueueItem {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			item := q.pending[0]
			q.pending = q.pending[1:]
			now := time.Now()
			item.Status = QueueStatusProcessing
			item.StartedAt = &now
			metrics.QueueDepth.Set(float64(len(q.pending)))
			q.mu.Unlock()
			return item
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
			return nil
		}
	}
}

func (q *Queue) process(item *QueueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), q.itemTimeout)
	defer cancel()

	err := q.evaluator.EvaluateDocument(ctx, item.EvaluationID, q.onProgress)

	q.mu.Lock()
	now := time.Now()
	item.FinishedAt = &now
	if err != nil {
		item.Status = QueueStatusFailed
		item.Error = err.Error()
	} else {
		item.Status = QueueStatusCompleted
	}
	q.rotateHistory(item)
	q.mu.Unlock()

	q.signal()
}

// rotateHistory prepends a finished item and prunes beyond the cap.
// Callers hold the mutex.
func (q *Queue) rotateHistory(item *QueueItem) {
	q.history = append([]*QueueItem{item}, q.history...)
	if len(q.history) > historyLimit {
		for _, dropped := range q.history[historyLimit:] {
			if q.items[dropped.EvaluationID] == dropped {
				delete(q.items, dropped.EvaluationID)
			}
		}
		q.history = q.history[:historyLimit]
	}
}
