package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/btfbank/bank-api/shared/cqrs"
	"github.com/btfbank/bank-api/shared/models"
)

// ---- mock implementations ----

type mockAuthCommander struct {
	registerFn func(cqrs.RegisterUserCommand) (*models.Registration, error)
}

func (m *mockAuthCommander) Register(_ context.Context, cmd cqrs.RegisterUserCommand) (*models.Registration, error) {
	if m.registerFn != nil {
		return m.registerFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

type mockAuthQuerier struct {
	loginFn   func(cqrs.LoginCommand) (*models.AccessToken, error)
	refreshFn func(cqrs.RefreshTokenCommand) (*models.AccessToken, error)
}

func (m *mockAuthQuerier) Login(_ context.Context, cmd cqrs.LoginCommand) (*models.AccessToken, error) {
	if m.loginFn != nil {
		return m.loginFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAuthQuerier) RefreshToken(_ context.Context, cmd cqrs.RefreshTokenCommand) (*models.AccessToken, error) {
	if m.refreshFn != nil {
		return m.refreshFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

type mockAccountCommander struct {
	openFn   func(cqrs.OpenAccountCommand) (*models.AccountView, error)
	statusFn func(cqrs.ChangeAccountStatusCommand) (*models.AccountView, error)
}

func (m *mockAccountCommander) OpenAccount(_ context.Context, cmd cqrs.OpenAccountCommand) (*models.AccountView, error) {
	if m.openFn != nil {
		return m.openFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAccountCommander) ChangeStatus(_ context.Context, cmd cqrs.ChangeAccountStatusCommand) (*models.AccountView, error) {
	if m.statusFn != nil {
		return m.statusFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

type mockAccountQuerier struct {
	getFn     func(cqrs.GetAccountQuery) (*models.AccountView, error)
	balanceFn func(cqrs.GetBalanceQuery) (*models.BalanceView, error)
	listFn    func(cqrs.ListAccountsQuery) ([]models.AccountView, error)
}

func (m *mockAccountQuerier) GetAccount(_ context.Context, q cqrs.GetAccountQuery) (*models.AccountView, error) {
	if m.getFn != nil {
		return m.getFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAccountQuerier) GetBalance(_ context.Context, q cqrs.GetBalanceQuery) (*models.BalanceView, error) {
	if m.balanceFn != nil {
		return m.balanceFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAccountQuerier) ListAccounts(_ context.Context, q cqrs.ListAccountsQuery) ([]models.AccountView, error) {
	if m.listFn != nil {
		return m.listFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

type mockUserQuerier struct {
	profileFn func(cqrs.GetProfileQuery) (*models.UserView, error)
}

func (m *mockUserQuerier) GetProfile(_ context.Context, q cqrs.GetProfileQuery) (*models.UserView, error) {
	if m.profileFn != nil {
		return m.profileFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

type mockTransactionCommander struct {
	depositFn  func(cqrs.DepositCommand) (*models.Transaction, error)
	withdrawFn func(cqrs.WithdrawalCommand) (*models.Transaction, error)
	transferFn func(cqrs.TransferCommand) (*models.Transaction, error)
}

func (m *mockTransactionCommander) RecordDeposit(_ context.Context, cmd cqrs.DepositCommand) (*models.Transaction, error) {
	if m.depositFn != nil {
		return m.depositFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockTransactionCommander) RecordWithdrawal(_ context.Context, cmd cqrs.WithdrawalCommand) (*models.Transaction, error) {
	if m.withdrawFn != nil {
		return m.withdrawFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockTransactionCommander) RecordTransfer(_ context.Context, cmd cqrs.TransferCommand) (*models.Transaction, error) {
	if m.transferFn != nil {
		return m.transferFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

type mockTransactionQuerier struct {
	listFn func(cqrs.ListTransactionsQuery) (*models.TransactionPage, error)
	getFn  func(cqrs.GetTransactionQuery) (*models.Transaction, error)
}

func (m *mockTransactionQuerier) ListTransactions(_ context.Context, q cqrs.ListTransactionsQuery) (*models.TransactionPage, error) {
	if m.listFn != nil {
		return m.listFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockTransactionQuerier) GetTransaction(_ context.Context, q cqrs.GetTransactionQuery) (*models.Transaction, error) {
	if m.getFn != nil {
		return m.getFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

// ---- helpers ----

func fakeAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userId", userID)
		c.Next()
	}
}

type testDeps struct {
	authCmds   *mockAuthCommander
	authQrys   *mockAuthQuerier
	acctCmds   *mockAccountCommander
	acctQrys   *mockAccountQuerier
	userQrys   *mockUserQuerier
	txnCmds    *mockTransactionCommander
	txnQrys    *mockTransactionQuerier
	storeError error
}

func newTestRouter(d testDeps, authUserID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if d.authCmds == nil {
		d.authCmds = &mockAuthCommander{}
	}
	if d.authQrys == nil {
		d.authQrys = &mockAuthQuerier{}
	}
	if d.acctCmds == nil {
		d.acctCmds = &mockAccountCommander{}
	}
	if d.acctQrys == nil {
		d.acctQrys = &mockAccountQuerier{}
	}
	if d.userQrys == nil {
		d.userQrys = &mockUserQuerier{}
	}
	if d.txnCmds == nil {
		d.txnCmds = &mockTransactionCommander{}
	}
	if d.txnQrys == nil {
		d.txnQrys = &mockTransactionQuerier{}
	}
	r := gin.New()
	RegisterRoutes(r, Handlers{
		Auth:         NewAuthHandler(d.authCmds, d.authQrys, 1<<20),
		Users:        NewUserHandler(d.userQrys),
		Accounts:     NewAccountHandler(d.acctCmds, d.acctQrys),
		Transactions: NewTransactionHandler(d.txnCmds, d.txnQrys),
		Health:       NewHealthHandler(map[string]Pinger{"database": mockPinger{err: d.storeError}}),
	}, fakeAuth(authUserID))
	return r
}

func doRequest(router *gin.Engine, method, url string, body any, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, url, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ---- test data ----

var testAccountView = &models.AccountView{
	ID: "acc-001", AccountNumber: "BTF12345678", SortCode: "12-34-56", UserID: "usr-001",
	AccountType: models.AccountTypeCurrent, Balance: 10000, Currency: "GBP",
	Status: models.AccountStatusActive, CreatedAt: time.Now(), UpdatedAt: time.Now(),
}

var testUserView = &models.UserView{
	ID: "usr-001", FullName: "Alice Smith", Email: "alice@example.com",
	Phone: "+447700900000", Country: "GB", DateOfBirth: "1990-05-17", CreatedAt: time.Now(),
}
