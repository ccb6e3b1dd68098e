package cqrs

import "github.com/btfbank/bank-api/shared/models"

// Document is an uploaded identity document awaiting storage.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

type RegisterUserCommand struct {
	FullName       string
	Email          string
	Phone          string
	Country        string
	DateOfBirth    string
	ReferralCode   string
	Password       string
	InitialDeposit models.Money
	IDDocument     *Document
	Photo          *Document
}

type OpenAccountCommand struct {
	UserID         string
	AccountType    models.AccountType
	InitialDeposit models.Money
}

type ChangeAccountStatusCommand struct {
	AccountID        string
	RequestingUserID string
	Status           models.AccountStatus
}

type DepositCommand struct {
	AccountID      string
	UserID         string
	Amount         models.Money
	Description    string
	IdempotencyKey string
}

type WithdrawalCommand struct {
	AccountID      string
	UserID         string
	Amount         models.Money
	Description    string
	IdempotencyKey string
}

type TransferCommand struct {
	FromAccountID   string
	UserID          string
	ToAccountNumber string
	ToSortCode      string
	Amount          models.Money
	Reference       string
	RecipientName   string
	IdempotencyKey  string
}

type LoginCommand struct {
	Email    string
	Password string
}

type RefreshTokenCommand struct {
	Token string
}
