package infrastructure

import (
	"encoding/json"
	"fmt"
	"time"

	"betslip/domain/entities"
)

// streamEnvelope is the wire frame around every feed payload. Both the NATS
// and Kafka drivers carry the same JSON shape, so one decoder serves both.
type streamEnvelope struct {
	EventID       string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// decodeMarketEnvelope unwraps a feed message into a market update. Envelope
// metadata backfills fields the payload leaves empty so echo suppression and
// staleness checks work no matter which half the producer stamped.
func decodeMarketEnvelope(data []byte) (entities.MarketUpdate, error) {
	var env streamEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return entities.MarketUpdate{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if len(env.Payload) == 0 {
		return entities.MarketUpdate{}, fmt.Errorf("envelope %s has no payload", env.EventID)
	}

	var u entities.MarketUpdate
	if err := json.Unmarshal(env.Payload, &u); err != nil {
		return entities.MarketUpdate{}, fmt.Errorf("failed to unmarshal market update: %w", err)
	}

	if u.CorrelationID == "" {
		u.CorrelationID = env.CorrelationID
	}
	if u.At.IsZero() {
		u.At = env.Timestamp
	}

	return u, nil
}
