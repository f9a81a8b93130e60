package activity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"authgate/internal/domain"
	"authgate/internal/metrics"
)

// ErrListingUnsupported is returned by ListRecent when the sink is write-only.
var ErrListingUnsupported = errors.New("activity listing is not supported by the configured sink")

// Sink receives activity entries.
type Sink interface {
	Append(ctx context.Context, entry *domain.ActivityLog) error
}

// Lister is implemented by sinks that can read entries back.
type Lister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ActivityLog, error)
}

type Config struct {
	Buffer       int
	WriteTimeout time.Duration
	Logger       *logrus.Logger
}

// Recorder writes activity entries in the background. Record never blocks the caller
// and sink failures are only logged.
type Recorder struct {
	cfg   Config
	sink  Sink
	queue chan domain.ActivityLog

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewRecorder builds a recorder for sink. A nil sink turns Record into a no-op.
func NewRecorder(sink Sink, cfg Config) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Recorder{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan domain.ActivityLog, cfg.Buffer),
	}
}

// Start launches the background writer. ctx bounds individual writes, not the worker's lifetime;
// call Shutdown to drain and stop.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed || r.sink == nil {
		return
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for entry := range r.queue {
			r.write(ctx, entry)
		}
	}()
}

func (r *Recorder) write(parent context.Context, entry domain.ActivityLog) {
	// entries queued before shutdown still get written even if parent is already done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.sink.Append(ctx, &entry); err != nil {
		metrics.ActivityDropped("sink_error")
		r.cfg.Logger.WithError(err).WithFields(logrus.Fields{
			"user_id":       entry.UserID,
			"activity_type": entry.ActivityType,
		}).Warn("failed to log activity")
	}
}

// Record enqueues entry. It drops the entry when the queue is full or the recorder is shut down.
func (r *Recorder) Record(entry domain.ActivityLog) {
	if r == nil || r.sink == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.ActivityDropped("closed")
		return
	}
	select {
	case r.queue <- entry:
	default:
		metrics.ActivityDropped("queue_full")
		r.cfg.Logger.WithField("activity_type", entry.ActivityType).Warn("activity queue full, dropping entry")
	}
}

// ListRecent returns the newest entries when the sink supports reading.
func (r *Recorder) ListRecent(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if r == nil || r.sink == nil {
		return nil, ErrListingUnsupported
	}
	lister, ok := r.sink.(Lister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	return lister.ListRecent(ctx, limit)
}

// Shutdown stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.cfg.Logger.Info("activity recorder stopped")
}
