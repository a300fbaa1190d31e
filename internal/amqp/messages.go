package amqp

import (
	"encoding/json"
	"time"

	"paghetta/internal/core"
)

// TransactionPostedMessage is the lightweight event published after every
// ledger write. The mirror worker fetches the full record from the
// database, so the message carries only what it needs to locate it.
type TransactionPostedMessage struct {
	ID          string    `json:"id"`
	ChildID     int64     `json:"child_id"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewTransactionPostedMessage(tx *core.Transaction) *TransactionPostedMessage {
	return &TransactionPostedMessage{
		ID:          tx.ID,
		ChildID:     tx.ChildID,
		Kind:        string(tx.Kind),
		AmountCents: tx.Amount.Cents,
		Timestamp:   time.Now(),
	}
}

func (m *TransactionPostedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionPostedMessageFromJSON(data []byte) (*TransactionPostedMessage, error) {
	var msg TransactionPostedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
