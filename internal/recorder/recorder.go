package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/vary/internal/metrics"
	logpkg "github.com/rzbill/vary/pkg/log"
)

// Options configures a Recorder.
type Options struct {
	Logger logpkg.Logger
	// QueueSize bounds the async submission queue (default 1024). When the
	// queue is full, accepted events are dropped with a warning.
	QueueSize int
	// WriteTimeout bounds each sink write (default 2s).
	WriteTimeout time.Duration
}

// Recorder is the append-only event sink facade. TrackEvent validates
// synchronously and submits asynchronously: sink failures and overflow are
// logged and counted, never surfaced, so tracking can't block or fail the
// request path.
type Recorder struct {
	sink         Sink
	logger       logpkg.Logger
	queue        chan Event
	writeTimeout time.Duration

	// mu serializes enqueues against Close so nothing sends on a closed
	// queue.
	mu        sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Recorder over the given sink and starts its worker.
func New(sink Sink, opts Options) *Recorder {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	r := &Recorder{
		sink:         sink,
		logger:       logger.With(logpkg.Component("recorder")),
		queue:        make(chan Event, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// TrackEvent validates and enqueues an event. A *ValidationError is returned
// synchronously for malformed events; accepted events never report failure
// even if the underlying sink write later fails.
func (r *Recorder) TrackEvent(ev Event) error {
	if err := ev.Validate(); err != nil {
		metrics.EventsRejected.Inc()
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		metrics.EventsDropped.Inc()
		return nil
	}
	select {
	case r.queue <- ev:
	default:
		metrics.EventsDropped.Inc()
		r.logger.Warn("event queue full, dropping event",
			logpkg.Str("experiment", ev.ExperimentID), logpkg.Str("event", ev.Event))
	}
	return nil
}

// Results returns the raw, unaggregated event stream for an experiment.
// Aggregation and statistics are an external analytics concern.
func (r *Recorder) Results(ctx context.Context, experimentID string) ([]Event, error) {
	return r.sink.Read(ctx, experimentID)
}

// Close drains the queue and stops the worker. Events tracked after Close
// are dropped.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed.Store(true)
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := r.sink.Append(ctx, ev)
		cancel()
		if err != nil {
			metrics.EventsDropped.Inc()
			r.logger.Warn("event sink write failed, dropping event",
				logpkg.Str("experiment", ev.ExperimentID), logpkg.Str("event", ev.Event), logpkg.Err(err))
			continue
		}
		metrics.EventsRecorded.Inc()
	}
}
