package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"betslip/domain"
	"betslip/infrastructure/observability"
)

const (
	// MarketUpdateSubject is the JetStream subject pattern carrying feed events.
	MarketUpdateSubject = "markets.update.*"

	marketStreamName       = "market_updates"
	marketFeedConsumerName = "betslip-market-updates"
)

// NATSMarketStream consumes the market update feed from a single JetStream
// durable consumer and feeds it to the reconciler. Implements
// domain.MarketStream.
type NATSMarketStream struct {
	servers string
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
}

// NewNATSMarketStream creates a market stream over the given NATS servers.
func NewNATSMarketStream(servers string) *NATSMarketStream {
	return &NATSMarketStream{servers: servers}
}

// Start connects, ensures the stream exists, and delivers feed events to the
// handler until the context is cancelled. Handler errors NAK the message so
// JetStream redelivers it.
func (s *NATSMarketStream) Start(ctx context.Context, handler domain.MarketUpdateHandler) error {
	if err := s.connect(); err != nil {
		return err
	}
	if err := s.ensureStream(); err != nil {
		s.close()
		return err
	}

	sub, err := s.js.Subscribe(
		MarketUpdateSubject,
		func(msg *nats.Msg) {
			if err := s.deliver(ctx, handler, msg.Data); err != nil {
				log.WithFields(log.Fields{
					"subject": msg.Subject,
					"error":   err,
				}).Error("Failed to process market update")
				if nakErr := msg.Nak(); nakErr != nil {
					log.WithError(nakErr).Error("Failed to NAK message")
				}
				return
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.WithError(ackErr).Error("Failed to ACK message")
			}
		},
		nats.Durable(marketFeedConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		s.close()
		return fmt.Errorf("failed to subscribe to market updates: %w", err)
	}
	s.sub = sub

	log.Info("NATS market stream started")
	<-ctx.Done()
	return s.close()
}

// deliver decodes one feed message and hands it to the handler under the
// stream's lifecycle context, so shutdown cancels in-flight work.
func (s *NATSMarketStream) deliver(ctx context.Context, handler domain.MarketUpdateHandler, data []byte) error {
	observability.GetMetrics().RecordStreamMessageReceived("nats")

	u, err := decodeMarketEnvelope(data)
	if err != nil {
		return err
	}
	return handler(ctx, u)
}

func (s *NATSMarketStream) connect() error {
	opts := []nats.Option{
		nats.Name("betslip"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(s.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	s.nc, s.js = nc, js

	log.WithField("servers", s.servers).Info("Connected to NATS with JetStream")
	return nil
}

// ensureStream creates the feed stream when it does not exist yet. A day of
// retention covers any realistic outage; the registry only needs the latest
// snapshot per market anyway.
func (s *NATSMarketStream) ensureStream() error {
	if _, err := s.js.StreamInfo(marketStreamName); err == nil {
		return nil
	}

	_, err := s.js.AddStream(&nats.StreamConfig{
		Name:        marketStreamName,
		Subjects:    []string{MarketUpdateSubject},
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Description: "Sportsbook market update feed",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", marketStreamName, err)
	}

	log.WithField("stream", marketStreamName).Info("Created JetStream stream")
	return nil
}

func (s *NATSMarketStream) close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			log.WithError(err).Error("Failed to unsubscribe from market updates")
		}
		s.sub = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
		log.Info("NATS connection closed")
	}
	return nil
}
