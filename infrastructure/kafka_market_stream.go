package infrastructure

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"betslip/domain"
	"betslip/infrastructure/observability"
)

// KafkaMarketStream consumes the market update feed from a Kafka topic.
// Implements domain.MarketStream for deployments whose feed publishes to
// Kafka instead of JetStream.
type KafkaMarketStream struct {
	reader *kafka.Reader
}

// NewKafkaMarketStream creates a consumer-group reader over the feed topic.
func NewKafkaMarketStream(brokers []string, topic, groupID string) *KafkaMarketStream {
	return &KafkaMarketStream{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			Topic:             topic,
			GroupID:           groupID,
			MinBytes:          1,
			MaxBytes:          10e6,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
			CommitInterval:    time.Second,
			StartOffset:       kafka.FirstOffset,
		}),
	}
}

// Start delivers feed events to the handler until the context is cancelled.
// Offsets commit on read; a failed message is logged and skipped rather than
// replayed, since the next snapshot for the market supersedes it anyway.
func (s *KafkaMarketStream) Start(ctx context.Context, handler domain.MarketUpdateHandler) error {
	log.WithFields(log.Fields{
		"topic": s.reader.Config().Topic,
		"group": s.reader.Config().GroupID,
	}).Info("Kafka market stream started")

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return s.reader.Close()
			}
			log.WithError(err).Error("Failed to read from market topic")
			continue
		}

		observability.GetMetrics().RecordStreamMessageReceived("kafka")

		u, err := decodeMarketEnvelope(msg.Value)
		if err != nil {
			log.WithFields(log.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
				"error":     err,
			}).Error("Failed to decode market update")
			continue
		}

		if err := handler(ctx, u); err != nil {
			log.WithFields(log.Fields{
				"gameID": u.Ref.GameID,
				"period": u.Ref.PeriodNumber,
				"error":  err,
			}).Error("Failed to handle market update")
		}
	}
}
