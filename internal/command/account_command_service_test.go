package command

import (
	"context"
	"regexp"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btfbank/bank-api/shared/apperr"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/events"
	"github.com/btfbank/bank-api/shared/models"
	sharedredis "github.com/btfbank/bank-api/shared/redis"
)

func TestOpenAccount(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@example.com", 0)
	ctx := context.Background()

	view, err := env.accounts.OpenAccount(ctx, cqrs.OpenAccountCommand{
		UserID:         reg.User.ID,
		AccountType:    models.AccountTypeSavings,
		InitialDeposit: 2500,
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^BTF\d{8}$`), view.AccountNumber)
	assert.Equal(t, "12-34-56", view.SortCode)
	assert.Equal(t, "GBP", view.Currency)
	assert.Equal(t, models.AccountStatusActive, view.Status)
	assert.Equal(t, models.Money(2500), view.Balance)
	assert.Equal(t, models.Money(2500), env.balance(t, view.ID))

	list, err := env.store.Transactions().ListByAccountID(ctx, view.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Initial deposit", list[0].Description)
	assert.Equal(t, models.TransactionStatusCompleted, list[0].Status)
	assert.Contains(t, env.publisher.types(), events.AccountOpened)
}

func TestOpenAccountValidation(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@example.com", 0)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  cqrs.OpenAccountCommand
		kind apperr.Kind
	}{
		{"unknown type", cqrs.OpenAccountCommand{UserID: reg.User.ID, AccountType: "crypto"}, apperr.KindInvalidRequest},
		{"negative deposit", cqrs.OpenAccountCommand{UserID: reg.User.ID, AccountType: models.AccountTypeCurrent, InitialDeposit: -1}, apperr.KindInvalidRequest},
		{"deposit above the maximum", cqrs.OpenAccountCommand{UserID: reg.User.ID, AccountType: models.AccountTypeCurrent, InitialDeposit: maxAmount + 1}, apperr.KindInvalidRequest},
		{"unknown user", cqrs.OpenAccountCommand{UserID: "ghost", AccountType: models.AccountTypeCurrent}, apperr.KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accounts.OpenAccount(ctx, tt.cmd)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestChangeStatus(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "alice@example.com", 500)
	ctx := context.Background()
	change := func(userID string, status models.AccountStatus) (*models.AccountView, error) {
		return env.accounts.ChangeStatus(ctx, cqrs.ChangeAccountStatusCommand{
			AccountID: reg.Account.ID, RequestingUserID: userID, Status: status,
		})
	}

	_, err := change("intruder", models.AccountStatusFrozen)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = change(reg.User.ID, "dormant")
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))

	_, err = change(reg.User.ID, models.AccountStatusActive)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err), "active to active is not a transition")

	view, err := change(reg.User.ID, models.AccountStatusFrozen)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusFrozen, view.Status)

	_, err = change(reg.User.ID, models.AccountStatusClosed)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err), "closing needs a zero balance")

	view, err = change(reg.User.ID, models.AccountStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusActive, view.Status)

	_, err = env.transactions.RecordWithdrawal(ctx, cqrs.WithdrawalCommand{AccountID: reg.Account.ID, UserID: reg.User.ID, Amount: 500})
	require.NoError(t, err)

	view, err = change(reg.User.ID, models.AccountStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusClosed, view.Status)

	_, err = change(reg.User.ID, models.AccountStatusActive)
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err), "closed is terminal")
	assert.Contains(t, env.publisher.types(), events.AccountStatusChanged)
}

func TestAccountViewsFollowWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	views := sharedredis.NewAccountViews(client, 0)

	env := newTestEnv(t)
	env.accounts.views = views
	env.transactions.views = views
	reg := env.register(t, "alice@example.com", 0)
	ctx := context.Background()

	view, err := env.accounts.OpenAccount(ctx, cqrs.OpenAccountCommand{UserID: reg.User.ID, AccountType: models.AccountTypeBusiness})
	require.NoError(t, err)
	cached, ok := views.Get(ctx, view.ID)
	require.True(t, ok)
	assert.Equal(t, reg.User.ID, cached.UserID)

	_, err = env.transactions.RecordDeposit(ctx, cqrs.DepositCommand{AccountID: view.ID, UserID: reg.User.ID, Amount: 100})
	require.NoError(t, err)
	_, ok = views.Get(ctx, view.ID)
	assert.False(t, ok, "balance change must evict the cached view")
}
