package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"finsight/internal/core"
)

// IngestionMessage announces that a live ingestion completed for a user and
// date range. Consumers re-read state from the database; the message carries
// only the key and a count.
type IngestionMessage struct {
	EventID          string    `json:"event_id"`
	UserID           string    `json:"user_id"`
	StartDate        string    `json:"start_date"`
	EndDate          string    `json:"end_date"`
	TransactionCount int       `json:"transaction_count"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewIngestionMessage stamps a fresh event ID and timestamp.
func NewIngestionMessage(userID string, rng core.DateRange, transactionCount int) *IngestionMessage {
	return &IngestionMessage{
		EventID:          uuid.NewString(),
		UserID:           userID,
		StartDate:        rng.StartDate,
		EndDate:          rng.EndDate,
		TransactionCount: transactionCount,
		Timestamp:        time.Now(),
	}
}

// Range rebuilds the date range the ingestion covered.
func (m *IngestionMessage) Range() core.DateRange {
	return core.DateRange{StartDate: m.StartDate, EndDate: m.EndDate}
}

// ToJSON converts the message to JSON bytes
func (m *IngestionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IngestionMessageFromJSON creates a message from JSON bytes
func IngestionMessageFromJSON(data []byte) (*IngestionMessage, error) {
	var msg IngestionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
