package review

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Sink delivers records to the review service.
type Sink interface {
	Publish(ctx context.Context, recs ...Record) error
	Close() error
}

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("review: dispatcher closed")

type DispatcherConfig struct {
	Buffer         int           `yaml:"buffer" default:"256" validate:"gte=1"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// Dispatcher publishes records from a bounded queue on its own
// goroutine. When the queue is full the record is dropped and counted.
type Dispatcher struct {
	sink    Sink
	cfg     DispatcherConfig
	log     zerolog.Logger
	queue   chan Record
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(sink Sink, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	d := &Dispatcher{
		sink:  sink,
		cfg:   cfg,
		log:   log.With().Str("component", "review").Logger(),
		queue: make(chan Record, cfg.Buffer),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit enqueues rec without waiting. It reports false when the record
// was dropped.
func (d *Dispatcher) Submit(rec Record) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false, ErrClosed
	}
	select {
	case d.queue <- rec:
		return true, nil
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("trade", rec.TradeID).Msg("review queue full, record dropped")
		return false, nil
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for rec := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
		err := d.sink.Publish(ctx, rec)
		cancel()
		if err != nil {
			d.failed.Add(1)
			d.log.Warn().Err(err).Str("trade", rec.TradeID).Msg("review publish failed")
			continue
		}
		d.sent.Add(1)
	}
}

// Close stops accepting records, drains the queue and closes the sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	d.log.Info().
		Int64("sent", d.sent.Load()).
		Int64("dropped", d.dropped.Load()).
		Int64("failed", d.failed.Load()).
		Msg("review dispatcher closed")
	return d.sink.Close()
}

// Stats returns sent, dropped and failed counts.
func (d *Dispatcher) Stats() (sent, dropped, failed int64) {
	return d.sent.Load(), d.dropped.Load(), d.failed.Load()
}
