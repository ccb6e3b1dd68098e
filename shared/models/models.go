package models

import "time"

type AccountType string

const (
	AccountTypeCurrent  AccountType = "current"
	AccountTypeSavings  AccountType = "savings"
	AccountTypeBusiness AccountType = "business"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeCurrent, AccountTypeSavings, AccountTypeBusiness:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusFrozen, AccountStatusClosed:
		return true
	}
	return false
}

// accountTransitions lists the allowed status changes. closed is terminal.
var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusActive: {AccountStatusFrozen, AccountStatusClosed},
	AccountStatusFrozen: {AccountStatusActive, AccountStatusClosed},
}

// CanTransitionTo reports whether an account may move from s to next.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	for _, allowed := range accountTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypePayment    TransactionType = "payment"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Terminal reports whether no further status change is permitted.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

type User struct {
	ID            string    `json:"id"`
	FullName      string    `json:"fullName"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Phone         string    `json:"phone"`
	Country       string    `json:"country"`
	DateOfBirth   string    `json:"dateOfBirth"`
	ReferralCode  string    `json:"referralCode,omitempty"`
	IDDocumentRef string    `json:"-"`
	PhotoRef      string    `json:"-"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdTimestamp"`
	UpdatedAt     time.Time `json:"updatedTimestamp"`
}

type Account struct {
	ID            string        `json:"id"`
	AccountNumber string        `json:"accountNumber"`
	SortCode      string        `json:"sortCode"`
	UserID        string        `json:"-"`
	AccountType   AccountType   `json:"accountType"`
	Balance       Money         `json:"balance"`
	Currency      string        `json:"currency"`
	Status        AccountStatus `json:"status"`
	Version       int64         `json:"-"`
	CreatedAt     time.Time     `json:"createdTimestamp"`
	UpdatedAt     time.Time     `json:"updatedTimestamp"`
}

// Transaction is a single money-movement attempt. Deposits carry only a
// destination, withdrawals only a source, transfers both.
type Transaction struct {
	ID                   string            `json:"id"`
	Type                 TransactionType   `json:"type"`
	Amount               Money             `json:"amount"`
	Currency             string            `json:"currency"`
	SourceAccountID      string            `json:"sourceAccountId,omitempty"`
	DestinationAccountID string            `json:"destinationAccountId,omitempty"`
	Status               TransactionStatus `json:"status"`
	Description          string            `json:"description,omitempty"`
	Reference            string            `json:"reference,omitempty"`
	RecipientName        string            `json:"recipientName,omitempty"`
	FailureReason        string            `json:"failureReason,omitempty"`
	IdempotencyKey       string            `json:"-"`
	InitiatedBy          string            `json:"-"`
	CreatedAt            time.Time         `json:"createdTimestamp"`
	UpdatedAt            time.Time         `json:"updatedTimestamp"`
}

// Touches reports whether the transaction debits or credits accountID.
func (t *Transaction) Touches(accountID string) bool {
	return t.SourceAccountID == accountID || t.DestinationAccountID == accountID
}
