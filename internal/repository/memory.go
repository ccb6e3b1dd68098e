package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/btfbank/bank-api/shared/models"
)

// MemoryStore keeps everything in process memory. It backs local runs with
// STORE_DRIVER=memory and the service tests. Units of work run one at a time
// against a copy of the state that replaces the original only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memTxn struct {
	txn models.Transaction
	seq int64
}

type memState struct {
	users          map[string]models.User
	userEmails     map[string]string
	accounts       map[string]models.Account
	accountNumbers map[string]string
	transactions   map[string]memTxn
	idempotency    map[string]string
	seq            int64
}

func newMemState() *memState {
	return &memState{
		users:          map[string]models.User{},
		userEmails:     map[string]string{},
		accounts:       map[string]models.Account{},
		accountNumbers: map[string]string{},
		transactions:   map[string]memTxn{},
		idempotency:    map[string]string{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:          make(map[string]models.User, len(s.users)),
		userEmails:     make(map[string]string, len(s.userEmails)),
		accounts:       make(map[string]models.Account, len(s.accounts)),
		accountNumbers: make(map[string]string, len(s.accountNumbers)),
		transactions:   make(map[string]memTxn, len(s.transactions)),
		idempotency:    make(map[string]string, len(s.idempotency)),
		seq:            s.seq,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.userEmails {
		c.userEmails[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.accountNumbers {
		c.accountNumbers[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

func (s *MemoryStore) Users() UserRepository               { return &memUsers{memView{store: s}} }
func (s *MemoryStore) Accounts() AccountRepository         { return &memAccounts{memView{store: s}} }
func (s *MemoryStore) Transactions() TransactionRepository { return &memTransactions{memView{store: s}} }

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) WithinTx(ctx context.Context, fn TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memRepos{view: memView{store: s, tx: work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// memView routes each repository call either to the working copy of an open
// unit of work or, outside one, to the live state under the store lock.
type memView struct {
	store *MemoryStore
	tx    *memState
}

func (v memView) read(fn func(s *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.state)
}

func (v memView) write(fn func(s *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type memRepos struct {
	view memView
}

func (r *memRepos) Users() UserRepository               { return &memUsers{r.view} }
func (r *memRepos) Accounts() AccountRepository         { return &memAccounts{r.view} }
func (r *memRepos) Transactions() TransactionRepository { return &memTransactions{r.view} }

// ---------- users ----------

type memUsers struct {
	memView
}

func (r *memUsers) Create(_ context.Context, user *models.User) error {
	return r.write(func(s *memState) error {
		if _, ok := s.userEmails[user.Email]; ok {
			return ErrEmailTaken
		}
		s.users[user.ID] = *user
		s.userEmails[user.Email] = user.ID
		return nil
	})
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	var out *models.User
	err := r.read(func(s *memState) error {
		u, ok := s.users[id]
		if !ok {
			return ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var out *models.User
	err := r.read(func(s *memState) error {
		id, ok := s.userEmails[email]
		if !ok {
			return ErrNotFound
		}
		u := s.users[id]
		out = &u
		return nil
	})
	return out, err
}

// ---------- accounts ----------

type memAccounts struct {
	memView
}

func (r *memAccounts) Create(_ context.Context, account *models.Account) error {
	return r.write(func(s *memState) error {
		if _, ok := s.accountNumbers[account.AccountNumber]; ok {
			return ErrAccountNumberTaken
		}
		s.accounts[account.ID] = *account
		s.accountNumbers[account.AccountNumber] = account.ID
		return nil
	})
}

func (r *memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	var out *models.Account
	err := r.read(func(s *memState) error {
		a, ok := s.accounts[id]
		if !ok {
			return ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *memAccounts) GetByNumber(_ context.Context, accountNumber, sortCode string) (*models.Account, error) {
	var out *models.Account
	err := r.read(func(s *memState) error {
		id, ok := s.accountNumbers[accountNumber]
		if !ok {
			return ErrNotFound
		}
		a := s.accounts[id]
		if a.SortCode != sortCode {
			return ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *memAccounts) ListByUserID(_ context.Context, userID string) ([]models.Account, error) {
	out := []models.Account{}
	err := r.read(func(s *memState) error {
		for _, a := range s.accounts {
			if a.UserID == userID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r *memAccounts) AdjustBalance(_ context.Context, id string, delta, minBalance models.Money) (models.Money, error) {
	var balance models.Money
	err := r.write(func(s *memState) error {
		a, ok := s.accounts[id]
		switch {
		case !ok:
			return ErrNotFound
		case a.Status != models.AccountStatusActive:
			return ErrAccountNotActive
		case delta > 0 && a.Balance > math.MaxInt64-delta:
			return ErrBalanceOutOfRange
		case a.Balance+delta < minBalance:
			return ErrInsufficientFunds
		}
		a.Balance += delta
		a.Version++
		a.UpdatedAt = r.store.now().UTC()
		s.accounts[id] = a
		balance = a.Balance
		return nil
	})
	return balance, err
}

func (r *memAccounts) UpdateStatus(_ context.Context, id string, from, to models.AccountStatus) (*models.Account, error) {
	var out *models.Account
	err := r.write(func(s *memState) error {
		a, ok := s.accounts[id]
		switch {
		case !ok:
			return ErrNotFound
		case a.Status != from:
			return ErrStatusChanged
		case to == models.AccountStatusClosed && a.Balance != 0:
			return ErrBalanceNotZero
		}
		a.Status = to
		a.UpdatedAt = r.store.now().UTC()
		s.accounts[id] = a
		out = &a
		return nil
	})
	return out, err
}

// ---------- transactions ----------

type memTransactions struct {
	memView
}

func idempotencyIndex(userID, key string) string {
	return userID + "\x00" + key
}

func (r *memTransactions) Create(_ context.Context, txn *models.Transaction) error {
	return r.write(func(s *memState) error {
		if txn.IdempotencyKey != "" {
			k := idempotencyIndex(txn.InitiatedBy, txn.IdempotencyKey)
			if _, ok := s.idempotency[k]; ok {
				return ErrIdempotencyKeyTaken
			}
			s.idempotency[k] = txn.ID
		}
		s.seq++
		s.transactions[txn.ID] = memTxn{txn: *txn, seq: s.seq}
		return nil
	})
}

func (r *memTransactions) Complete(_ context.Context, id string) error {
	return r.write(func(s *memState) error {
		m, ok := s.transactions[id]
		if !ok || m.txn.Status != models.TransactionStatusPending {
			return ErrTransactionNotPending
		}
		m.txn.Status = models.TransactionStatusCompleted
		m.txn.UpdatedAt = r.store.now().UTC()
		s.transactions[id] = m
		return nil
	})
}

func (r *memTransactions) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	var out *models.Transaction
	err := r.read(func(s *memState) error {
		m, ok := s.transactions[id]
		if !ok {
			return ErrNotFound
		}
		out = &m.txn
		return nil
	})
	return out, err
}

func (r *memTransactions) GetByIdempotencyKey(ctx context.Context, userID, key string) (*models.Transaction, error) {
	var id string
	err := r.read(func(s *memState) error {
		var ok bool
		if id, ok = s.idempotency[idempotencyIndex(userID, key)]; !ok {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *memTransactions) ListByAccountID(_ context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	var matched []memTxn
	err := r.read(func(s *memState) error {
		for _, m := range s.transactions {
			if m.txn.Touches(accountID) {
				matched = append(matched, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	out := []models.Transaction{}
	for i := offset; i < len(matched) && (limit <= 0 || len(out) < limit); i++ {
		out = append(out, matched[i].txn)
	}
	return out, nil
}
