package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/mbd888/walletrisk/internal/metrics"
)

// TxEvent is a transaction notification on the Kafka topic.
type TxEvent struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Token string `json:"token,omitempty"`
}

// KafkaConfig configures the Kafka consumer.
type KafkaConfig struct {
	Brokers string // comma separated
	Topic   string
	Group   string
}

// KafkaConsumer invalidates scores for addresses named in transaction events.
type KafkaConsumer struct {
	group       sarama.ConsumerGroup
	topic       string
	invalidator Invalidator
	logger      *slog.Logger
}

// NewKafkaConsumer joins the consumer group.
func NewKafkaConsumer(cfg KafkaConfig, inv Invalidator, logger *slog.Logger) (*KafkaConsumer, error) {
	brokers := splitCSV(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	cg, err := sarama.NewConsumerGroup(brokers, cfg.Group, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: join group %s: %w", cfg.Group, err)
	}
	return &KafkaConsumer{group: cg, topic: cfg.Topic, invalidator: inv, logger: logger}, nil
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	go func() {
		for err := range k.group.Errors() {
			k.logger.Warn("kafka consumer error", "error", err)
		}
	}()

	h := &eventHandler{invalidator: k.invalidator, logger: k.logger}
	for {
		if err := k.group.Consume(ctx, []string{k.topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			k.logger.Warn("kafka consume failed", "topic", k.topic, "error", err)
			time.Sleep(300 * time.Millisecond)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close leaves the consumer group.
func (k *KafkaConsumer) Close() error { return k.group.Close() }

type eventHandler struct {
	invalidator Invalidator
	logger      *slog.Logger
}

func (h *eventHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *eventHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *eventHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handle(sess.Context(), msg.Value); err != nil {
			h.logger.Warn("skipping tx event",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// handle invalidates both endpoints of one event. Malformed events are
// reported and skipped; they are never retried.
func (h *eventHandler) handle(ctx context.Context, value []byte) error {
	var ev TxEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if ev.From == "" && ev.To == "" {
		return fmt.Errorf("event %s names no addresses", ev.Hash)
	}
	n, err := h.invalidator.Invalidate(ctx, ev.From, ev.To)
	if err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	metrics.InvalidationsTotal.WithLabelValues("kafka").Add(float64(n))
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
