package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"fundboard/internal/refresh"
)

// Message types.
const (
	TypeChange      = "change"
	TypeCelebration = "celebration"
)

// ChangeMessage announces a detected change of the fundraising figures.
// Amounts travel as decimal strings.
type ChangeMessage struct {
	Type          string          `json:"type"`
	HistoryID     int64           `json:"history_id,omitempty"`
	Snapshot      string          `json:"snapshot"`
	Total         decimal.Decimal `json:"total"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	Goal          decimal.Decimal `json:"goal"`
	Expenses      string          `json:"expenses"`
	Celebrate     bool            `json:"celebrate"`
	ChangedAt     time.Time       `json:"changed_at"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewChangeMessage builds the message for a changed outcome.
func NewChangeMessage(out refresh.Outcome) *ChangeMessage {
	msg := &ChangeMessage{
		Type:          TypeChange,
		Snapshot:      out.Snapshot,
		Total:         out.Summary.TotalCollected,
		PreviousTotal: out.PreviousTotal,
		Goal:          out.Summary.GoalAmount,
		Expenses:      out.Summary.FixedExpenses,
		Celebrate:     out.Celebrate,
		ChangedAt:     out.DisplayTimestamp.UTC(),
		Timestamp:     time.Now().UTC(),
	}
	if out.Celebrate {
		msg.Type = TypeCelebration
	}
	if out.Record != nil {
		msg.HistoryID = out.Record.ID
	}
	return msg
}

// Raised returns how much the total grew.
func (m *ChangeMessage) Raised() decimal.Decimal {
	return m.Total.Sub(m.PreviousTotal)
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
