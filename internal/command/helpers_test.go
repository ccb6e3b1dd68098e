package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btfbank/bank-api/internal/documents"
	"github.com/btfbank/bank-api/internal/lock"
	"github.com/btfbank/bank-api/internal/repository"
	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/models"
)

type publishedEvent struct {
	stream    string
	eventType string
	data      any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{stream: stream, eventType: eventType, data: data})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.eventType
	}
	return out
}

type stubTokens struct{ err error }

func (s stubTokens) Issue(userID, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "token-" + userID, nil
}

type fakeUploader struct {
	mu        sync.Mutex
	uploaded  []string
	deleted   []string
	uploadErr error
}

func (f *fakeUploader) Upload(_ context.Context, userID string, kind documents.Kind, _ *cqrs.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	ref := "s3://kyc/users/" + userID + "/" + string(kind)
	f.uploaded = append(f.uploaded, ref)
	return ref, nil
}

func (f *fakeUploader) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

// failingStore wraps a store and fails the failOn-th unit of work.
type failingStore struct {
	repository.Store
	failOn int
	calls  int
	err    error
}

func (s *failingStore) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	s.calls++
	if s.calls == s.failOn {
		return s.err
	}
	return s.Store.WithinTx(ctx, fn)
}

// faultyStore fails partway through a unit of work, after earlier writes in
// it have been applied, so the rollback path is exercised.
type faultyStore struct {
	repository.Store
	failAdjustment int // 1-based; 0 disables
	failComplete   bool
	err            error
}

func (s *faultyStore) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return fn(ctx, &faultyRepos{Repositories: tx, store: s})
	})
}

type faultyRepos struct {
	repository.Repositories
	store       *faultyStore
	adjustments int
}

func (r *faultyRepos) Accounts() repository.AccountRepository {
	return faultyAccounts{AccountRepository: r.Repositories.Accounts(), repos: r}
}

func (r *faultyRepos) Transactions() repository.TransactionRepository {
	return faultyTransactions{TransactionRepository: r.Repositories.Transactions(), store: r.store}
}

type faultyAccounts struct {
	repository.AccountRepository
	repos *faultyRepos
}

func (a faultyAccounts) AdjustBalance(ctx context.Context, id string, delta, minBalance models.Money) (models.Money, error) {
	a.repos.adjustments++
	if a.repos.adjustments == a.repos.store.failAdjustment {
		return 0, a.repos.store.err
	}
	return a.AccountRepository.AdjustBalance(ctx, id, delta, minBalance)
}

type faultyTransactions struct {
	repository.TransactionRepository
	store *faultyStore
}

func (t faultyTransactions) Complete(ctx context.Context, id string) error {
	if t.store.failComplete {
		return t.store.err
	}
	return t.TransactionRepository.Complete(ctx, id)
}

var errStorageDown = errors.New("storage down")

type testEnv struct {
	store        repository.Store
	publisher    *recordingPublisher
	accounts     *AccountCommandService
	transactions *TransactionCommandService
	users        *UserCommandService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, repository.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store repository.Store) *testEnv {
	t.Helper()
	pub := &recordingPublisher{}
	locks := lock.NewStriped(lock.DefaultStripes)
	accounts := NewAccountCommandService(store, locks, Branch{SortCode: "12-34-56", Currency: "GBP"}, nil, pub)
	return &testEnv{
		store:        store,
		publisher:    pub,
		accounts:     accounts,
		transactions: NewTransactionCommandService(store, locks, nil, pub),
		users:        NewUserCommandService(store, accounts, nil, stubTokens{}, nil),
	}
}

func (e *testEnv) register(t *testing.T, email string, deposit models.Money) *models.Registration {
	t.Helper()
	reg, err := e.users.Register(context.Background(), cqrs.RegisterUserCommand{
		FullName:       "Test User",
		Email:          email,
		Phone:          "+447700900000",
		Country:        "GB",
		DateOfBirth:    "1990-01-01",
		Password:       "securepass123",
		InitialDeposit: deposit,
	})
	require.NoError(t, err)
	return reg
}

func (e *testEnv) balance(t *testing.T, accountID string) models.Money {
	t.Helper()
	a, err := e.store.Accounts().GetByID(context.Background(), accountID)
	require.NoError(t, err)
	return a.Balance
}
