package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btfbank/bank-api/shared/models"
)

func seedAccount(t *testing.T, store Store, id string, balance models.Money) *models.Account {
	t.Helper()
	now := time.Now().UTC()
	a := &models.Account{
		ID:            id,
		AccountNumber: "BTF" + id[len(id)-8:],
		SortCode:      "12-34-56",
		UserID:        "user-1",
		AccountType:   models.AccountTypeCurrent,
		Balance:       balance,
		Currency:      "GBP",
		Status:        models.AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.Accounts().Create(context.Background(), a))
	return a
}

func TestMemoryUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	u := &models.User{ID: "user-1", Email: "alice@example.com", FullName: "Alice"}

	require.NoError(t, store.Users().Create(ctx, u))
	assert.ErrorIs(t, store.Users().Create(ctx, &models.User{ID: "user-2", Email: "alice@example.com"}), ErrEmailTaken)

	got, err := store.Users().GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)

	_, err = store.Users().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAdjustBalance(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, store, "acc-00000001", 1000)

	bal, err := store.Accounts().AdjustBalance(ctx, "acc-00000001", -400, 0)
	require.NoError(t, err)
	assert.Equal(t, models.Money(600), bal)

	_, err = store.Accounts().AdjustBalance(ctx, "acc-00000001", -601, 0)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = store.Accounts().AdjustBalance(ctx, "missing", 100, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Accounts().AdjustBalance(ctx, "acc-00000001", math.MaxInt64, 0)
	assert.ErrorIs(t, err, ErrBalanceOutOfRange, "a credit that would wrap must not look like insufficient funds")

	_, err = store.Accounts().UpdateStatus(ctx, "acc-00000001", models.AccountStatusActive, models.AccountStatusFrozen)
	require.NoError(t, err)
	_, err = store.Accounts().AdjustBalance(ctx, "acc-00000001", 100, 0)
	assert.ErrorIs(t, err, ErrAccountNotActive)

	a, err := store.Accounts().GetByID(ctx, "acc-00000001")
	require.NoError(t, err)
	assert.Equal(t, models.Money(600), a.Balance)
	assert.Equal(t, int64(1), a.Version)
}

func TestMemoryUpdateStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, store, "acc-00000001", 500)

	_, err := store.Accounts().UpdateStatus(ctx, "acc-00000001", models.AccountStatusActive, models.AccountStatusClosed)
	assert.ErrorIs(t, err, ErrBalanceNotZero)

	_, err = store.Accounts().UpdateStatus(ctx, "acc-00000001", models.AccountStatusFrozen, models.AccountStatusActive)
	assert.ErrorIs(t, err, ErrStatusChanged)
}

func TestMemoryWithinTxRollsBack(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, store, "acc-00000001", 1000)
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx Repositories) error {
		if _, err := tx.Accounts().AdjustBalance(ctx, "acc-00000001", -500, 0); err != nil {
			return err
		}
		if err := tx.Transactions().Create(ctx, &models.Transaction{ID: "tx-1", Status: models.TransactionStatusPending}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, err := store.Accounts().GetByID(ctx, "acc-00000001")
	require.NoError(t, err)
	assert.Equal(t, models.Money(1000), a.Balance)
	_, err = store.Transactions().GetByID(ctx, "tx-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTransactions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		txn := &models.Transaction{
			ID:                   id,
			Type:                 models.TransactionTypeDeposit,
			Amount:               models.Money(100 * (i + 1)),
			DestinationAccountID: "acc-1",
			Status:               models.TransactionStatusPending,
			InitiatedBy:          "user-1",
		}
		if id == "tx-2" {
			txn.IdempotencyKey = "key-1"
		}
		require.NoError(t, store.Transactions().Create(ctx, txn))
	}

	dup := &models.Transaction{ID: "tx-4", InitiatedBy: "user-1", IdempotencyKey: "key-1"}
	assert.ErrorIs(t, store.Transactions().Create(ctx, dup), ErrIdempotencyKeyTaken)
	// the same key is free for a different user
	require.NoError(t, store.Transactions().Create(ctx, &models.Transaction{ID: "tx-5", InitiatedBy: "user-2", IdempotencyKey: "key-1"}))

	got, err := store.Transactions().GetByIdempotencyKey(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-2", got.ID)

	require.NoError(t, store.Transactions().Complete(ctx, "tx-1"))
	assert.ErrorIs(t, store.Transactions().Complete(ctx, "tx-1"), ErrTransactionNotPending)

	list, err := store.Transactions().ListByAccountID(ctx, "acc-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tx-3", list[0].ID)
	assert.Equal(t, "tx-2", list[1].ID)

	list, err = store.Transactions().ListByAccountID(ctx, "acc-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tx-1", list[0].ID)
	assert.Equal(t, models.TransactionStatusCompleted, list[0].Status)
}
