package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/btfbank/bank-api/shared/models"
)

// Event types
const (
	UserRegistered = "user.registered"

	AccountOpened        = "account.opened"
	AccountStatusChanged = "account.status_changed"

	TransactionCompleted = "transaction.completed"
	TransactionFailed    = "transaction.failed"
)

// Stream names. The Kafka publisher uses them as topic names.
const (
	UserEventsStream        = "user.events"
	AccountEventsStream     = "account.events"
	TransactionEventsStream = "transaction.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// DecodeData re-decodes the loosely typed Data payload into v.
func (e Event) DecodeData(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}

type UserRegisteredEvent struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type AccountOpenedEvent struct {
	AccountID     string             `json:"accountId"`
	AccountNumber string             `json:"accountNumber"`
	UserID        string             `json:"userId"`
	AccountType   models.AccountType `json:"accountType"`
}

type AccountStatusChangedEvent struct {
	AccountID string               `json:"accountId"`
	UserID    string               `json:"userId"`
	Status    models.AccountStatus `json:"status"`
}

// TransactionRecordedEvent is emitted for both completed and failed transactions.
type TransactionRecordedEvent struct {
	TransactionID        string                   `json:"transactionId"`
	Type                 models.TransactionType   `json:"type"`
	Status               models.TransactionStatus `json:"status"`
	Amount               models.Money             `json:"amount"`
	Currency             string                   `json:"currency"`
	SourceAccountID      string                   `json:"sourceAccountId,omitempty"`
	DestinationAccountID string                   `json:"destinationAccountId,omitempty"`
	FailureReason        string                   `json:"failureReason,omitempty"`
}

func NewTransactionRecordedEvent(t *models.Transaction) TransactionRecordedEvent {
	return TransactionRecordedEvent{
		TransactionID:        t.ID,
		Type:                 t.Type,
		Status:               t.Status,
		Amount:               t.Amount,
		Currency:             t.Currency,
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		FailureReason:        t.FailureReason,
	}
}
