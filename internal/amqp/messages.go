package amqp

import (
	"time"

	"fintrack/internal/core"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// BudgetCheckMessage asks the worker to re-evaluate the budget of the month
// an expense landed in. The worker recomputes totals from the store, so the
// amount is informational only.
type BudgetCheckMessage struct {
	UserID        string          `json:"userId"`
	TransactionID string          `json:"transactionId"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewBudgetCheckMessage wraps check in a message stamped with the current time
func NewBudgetCheckMessage(check core.BudgetCheck) *BudgetCheckMessage {
	return &BudgetCheckMessage{
		UserID:        check.UserID,
		TransactionID: check.TransactionID,
		Date:          check.Date.UTC(),
		Amount:        check.Amount,
		Timestamp:     time.Now().UTC(),
	}
}

// Check converts the message back into the domain task
func (m *BudgetCheckMessage) Check() core.BudgetCheck {
	return core.BudgetCheck{
		UserID:        m.UserID,
		TransactionID: m.TransactionID,
		Date:          m.Date.UTC(),
		Amount:        m.Amount,
	}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetCheckMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetCheckMessageFromJSON decodes a message and rejects ones without a
// user.
func BudgetCheckMessageFromJSON(data []byte) (*BudgetCheckMessage, error) {
	var msg BudgetCheckMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, core.ErrMissingOwner
	}
	return &msg, nil
}
