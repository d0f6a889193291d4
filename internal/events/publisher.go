// Package events publishes fire-and-forget cache-invalidation messages after
// successful writes. Publishing is best-effort: failures are logged and never
// propagate to the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Invalidation is the message body observers receive.
type Invalidation struct {
	Kind    string    `json:"kind"` // chain_minted, chain_replaced, memory_updated, memory_deleted
	ChainID string    `json:"chain_id,omitempty"`
	URIs    []string  `json:"uris,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher writes invalidations to a kafka topic. The zero/nil Publisher is
// usable and drops everything, so callers never branch on configuration.
type Publisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// New builds a producer for the given brokers and topic.
func New(brokers []string, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireNone,
			Async:        true,
		},
		log: log.With().Str("component", "events").Logger(),
	}
}

// Publish sends the invalidation without blocking the write path for long.
func (p *Publisher) Publish(ctx context.Context, inv Invalidation) {
	if p == nil || p.writer == nil {
		return
	}
	inv.At = time.Now().UTC()
	body, err := json.Marshal(inv)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal invalidation")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(inv.ChainID),
		Value: body,
	}); err != nil {
		p.log.Warn().Err(err).Str("kind", inv.Kind).Msg("invalidation publish failed")
	}
}

// Close flushes and releases the producer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
