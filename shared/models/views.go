package models

import "time"

// UserView is the profile projection of a user.
// It never exposes PasswordHash or document references.
type UserView struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Country      string    `json:"country"`
	DateOfBirth  string    `json:"dateOfBirth"`
	ReferralCode string    `json:"referralCode,omitempty"`
	CreatedAt    time.Time `json:"createdTimestamp"`
}

// AccountView is the read-optimised projection of an account kept in Redis.
// UserID is kept in the cached JSON so ownership can be checked on a cache hit.
type AccountView struct {
	ID            string        `json:"id"`
	AccountNumber string        `json:"accountNumber"`
	SortCode      string        `json:"sortCode"`
	UserID        string        `json:"userId"`
	AccountType   AccountType   `json:"accountType"`
	Balance       Money         `json:"balance"`
	Currency      string        `json:"currency"`
	Status        AccountStatus `json:"status"`
	CreatedAt     time.Time     `json:"createdTimestamp"`
	UpdatedAt     time.Time     `json:"updatedTimestamp"`
}

// Registration is returned once a new customer has been onboarded.
type Registration struct {
	User      *UserView    `json:"user"`
	Account   *AccountView `json:"account"`
	Token     string       `json:"token"`
	TokenType string       `json:"tokenType"`
}

// BalanceView is the response of a balance query.
type BalanceView struct {
	AccountID string `json:"accountId"`
	Balance   Money  `json:"balance"`
	Currency  string `json:"currency"`
}

func NewUserView(u *User) *UserView {
	return &UserView{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		Phone:        u.Phone,
		Country:      u.Country,
		DateOfBirth:  u.DateOfBirth,
		ReferralCode: u.ReferralCode,
		CreatedAt:    u.CreatedAt,
	}
}

func NewAccountView(a *Account) *AccountView {
	return &AccountView{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		SortCode:      a.SortCode,
		UserID:        a.UserID,
		AccountType:   a.AccountType,
		Balance:       a.Balance,
		Currency:      a.Currency,
		Status:        a.Status,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// AccessToken is returned by login and token refresh.
type AccessToken struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"`
}

// TransactionPage is one page of an account's transaction history.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
}
