package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

// ErrNoBrokers is returned when a Kafka sink is configured without brokers.
var ErrNoBrokers = errors.New("review: brokers are required")

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers,omitempty"`
	Topic        string        `yaml:"topic" default:"meanrev.trades"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	// BreakerFailures is the number of consecutive failures that opens
	// the circuit.
	BreakerFailures uint32        `yaml:"breaker_failures" default:"3"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" default:"60s"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records as JSON through a circuit breaker. While
// the circuit is open Publish fails fast with gobreaker.ErrOpenState.
type KafkaSink struct {
	w     messageWriter
	topic string
	cb    *gobreaker.CircuitBreaker
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaSink(w, cfg), nil
}

func newKafkaSink(w messageWriter, cfg KafkaConfig) *KafkaSink {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	st := gobreaker.Settings{Name: "review-kafka"}
	st.Timeout = cfg.BreakerTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= failures
	}
	return &KafkaSink{w: w, topic: cfg.Topic, cb: gobreaker.NewCircuitBreaker(st)}
}

func (s *KafkaSink) Publish(ctx context.Context, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(recs))
	for _, r := range recs {
		v, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal review record: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: r.Key(), Value: v, Time: r.ExitTime})
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.w.WriteMessages(ctx, msgs...)
	})
	return err
}

// State reports the breaker state.
func (s *KafkaSink) State() gobreaker.State { return s.cb.State() }

func (s *KafkaSink) Close() error { return s.w.Close() }

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, ...Record) error { return nil }
func (Discard) Close() error                             { return nil }
