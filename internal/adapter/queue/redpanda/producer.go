// Package redpanda publishes conversation events (human hand-offs and
// ratings) to a Redpanda/Kafka topic.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	obsctx "github.com/fairyhunter13/laptop-assistant/internal/observability"
)

// DefaultTopic receives every conversation event.
const DefaultTopic = "conversation-events"

// client is the subset of *kgo.Client the producer uses.
type client interface {
	BeginTransaction() error
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	EndTransaction(ctx context.Context, commit kgo.TransactionEndTry) error
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
	Close()
}

// Producer implements domain.EventPublisher with transactional writes, so a
// consumer reading committed records never sees a half-written event.
type Producer struct {
	client client
	topic  string
	// serialises transactions on the shared client
	transactionChan chan struct{}
}

// NewProducer connects to brokers and ensures topic exists.
func NewProducer(ctx context.Context, brokers []string, topic, transactionalID string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w: no seed brokers provided", domain.ErrInvalidArgument)
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if transactionalID == "" {
		transactionalID = "laptop-assistant-producer"
	}
	slog.Info("creating redpanda producer",
		slog.Any("brokers", brokers),
		slog.String("topic", topic),
		slog.String("transactional_id", transactionalID))

	kotelService := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(
		kotel.TracerProvider(otel.GetTracerProvider()),
	)))
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.DialTimeout(10*time.Second),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := createTopicIfNotExists(ctx, cl, topic, 1, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist",
			slog.String("topic", topic), slog.Any("error", err))
	}
	return newProducer(cl, topic), nil
}

func newProducer(c client, topic string) *Producer {
	return &Producer{client: c, topic: topic, transactionChan: make(chan struct{}, 1)}
}

// Publish writes ev keyed by session id, so one conversation's events stay
// ordered on a single partition.
func (p *Producer) Publish(ctx domain.Context, ev domain.ConversationEvent) (err error) {
	defer func() { observability.ObserveEvent(ev.Type, err) }()
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("event_type", ev.Type),
		slog.String("session_id", ev.SessionID),
		slog.String("topic", p.topic))

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redpanda.Publish: marshal: %w", err)
	}

	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("op=redpanda.Publish: begin transaction: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.SessionID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "session_id", Value: []byte(ev.SessionID)},
		},
	}
	if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: "request_id", Value: []byte(rid)})
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		lg.Error("failed to produce event", slog.Any("error", err))
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			lg.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return fmt.Errorf("op=redpanda.Publish: produce: %w", err)
	}
	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("op=redpanda.Publish: commit transaction: %w", err)
	}
	lg.Info("conversation event published")
	return nil
}

// Close closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
