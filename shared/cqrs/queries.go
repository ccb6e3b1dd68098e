package cqrs

// ---------- User queries ----------

// GetProfileQuery fetches the authenticated user's own profile.
type GetProfileQuery struct {
	UserID string
}

// ---------- Account queries ----------

// GetAccountQuery fetches a single account, subject to ownership check.
type GetAccountQuery struct {
	AccountID        string
	RequestingUserID string
}

// GetBalanceQuery reads the authoritative balance of an owned account.
type GetBalanceQuery struct {
	AccountID        string
	RequestingUserID string
}

// ListAccountsQuery fetches all accounts belonging to a user.
type ListAccountsQuery struct {
	UserID string
}

// ---------- Transaction queries ----------

// GetTransactionQuery fetches a single transaction touching an owned account.
type GetTransactionQuery struct {
	TransactionID string
	AccountID     string
	UserID        string
}

// ListTransactionsQuery fetches the transactions of an account, newest first.
type ListTransactionsQuery struct {
	AccountID string
	UserID    string
	Limit     int
	Offset    int
}
