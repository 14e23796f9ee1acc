package clicks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"news_crawler/internal/metrics"
)

const flushTimeout = 5 * time.Second

// Store persists aggregated read-path side effects.
type Store interface {
	IncrementClicks(ctx context.Context, postID, delta int64) (int64, error)
	InsertViewLogs(ctx context.Context, postIDs []int64) error
}

type Config struct {
	BufferCapacity int
	FlushInterval  time.Duration
	FlushThreshold int
}

// Recorder takes post views off the request path. Record never blocks; a
// background loop batches views and writes them through Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
	config Config

	events chan int64
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewRecorder(store Store, cfg Config, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With("component", "clicks"),
		config: cfg,
		events: make(chan int64, cfg.BufferCapacity),
		closed: make(chan struct{}),
	}
}

// Record queues a view of postID. It returns false when the buffer is full
// and the view was dropped.
func (r *Recorder) Record(postID int64) bool {
	select {
	case r.events <- postID:
		return true
	default:
		metrics.ObserveClickDropped()
		r.logger.Warn("click buffer full, dropping view", "post_id", postID)
		return false
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.flushLoop()
}

// Stop stops accepting work, flushes what is buffered and waits for it.
// It is safe to call more than once.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.closed)
	})
	r.wg.Wait()
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]int64, 0, r.config.FlushThreshold)

	for {
		select {
		case id := <-r.events:
			batch = append(batch, id)
			if len(batch) >= r.config.FlushThreshold {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-r.closed:
			r.drain(&batch)
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}

func (r *Recorder) drain(batch *[]int64) {
	for {
		select {
		case id := <-r.events:
			*batch = append(*batch, id)
		default:
			return
		}
	}
}

// flush writes one view log row per view and one counter update per post.
func (r *Recorder) flush(batch []int64) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.store.InsertViewLogs(ctx, batch); err != nil {
		r.logger.Error("failed to insert view logs", "error", err, "batch_size", len(batch))
	}

	for postID, delta := range aggregate(batch) {
		if _, err := r.store.IncrementClicks(ctx, postID, delta); err != nil {
			r.logger.Error("failed to increment clicks", "error", err, "post_id", postID)
		}
	}

	r.logger.Debug("flushed views", "total", len(batch))
}

func aggregate(batch []int64) map[int64]int64 {
	deltas := make(map[int64]int64, len(batch))
	for _, id := range batch {
		deltas[id]++
	}
	return deltas
}
