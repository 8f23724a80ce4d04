// Package publish streams freshly aggregated quote sets to Kafka for
// downstream consumers (bet tracking, line-movement analysis).
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jraydirect/wagerloop-odds-engine/internal/models"
)

// KafkaWriter interface for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka producer configuration.
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
}

// QuoteMessage is the wire format for one provider's quote set.
type QuoteMessage struct {
	EventID   string               `json:"event_id"`
	SportCode string               `json:"sport_code"`
	Provider  string               `json:"provider"`
	Quotes    []models.MarketQuote `json:"quotes"`
	BatchID   string               `json:"batch_id"`
	Timestamp time.Time            `json:"timestamp"`
}

// QuotePublisher publishes aggregation results to Kafka, one message per
// provider quote set, partitioned by provider.
type QuotePublisher struct {
	writer KafkaWriter
	logger zerolog.Logger
}

// NewQuotePublisher creates a publisher with a real Kafka writer.
func NewQuotePublisher(cfg Config, logger zerolog.Logger) *QuotePublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  kafka.Snappy,
	}

	return &QuotePublisher{
		writer: writer,
		logger: logger.With().Str("component", "quote_publisher").Logger(),
	}
}

// Publish sends one message per provider quote set in the result.
func (p *QuotePublisher) Publish(ctx context.Context, result *models.AggregationResult) error {
	if len(result.Quotes) == 0 {
		return nil
	}

	batchID := uuid.New().String()
	msgs := make([]kafka.Message, 0, len(result.Quotes))

	for provider, set := range result.Quotes {
		message := QuoteMessage{
			EventID:   result.EventID,
			SportCode: result.SportCode,
			Provider:  provider,
			Quotes:    set.Quotes,
			BatchID:   batchID,
			Timestamp: set.FetchedAt,
		}

		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal quote message: %w", err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(provider),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "provider", Value: []byte(provider)},
				{Key: "event_id", Value: []byte(result.EventID)},
				{Key: "batch_id", Value: []byte(batchID)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error().
			Err(err).
			Str("event_id", result.EventID).
			Int("messages", len(msgs)).
			Msg("failed to write to Kafka")
		return fmt.Errorf("write quote messages: %w", err)
	}

	p.logger.Info().
		Str("event_id", result.EventID).
		Str("batch_id", batchID).
		Int("providers", len(msgs)).
		Msg("published quote batch")
	return nil
}

// Close closes the Kafka writer.
func (p *QuotePublisher) Close() error {
	return p.writer.Close()
}
