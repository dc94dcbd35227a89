package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"banking-loans/internal/model"
	"banking-loans/internal/repository"
)

// memStore хранилище в памяти. Транзакции выполняются по одной; при ошибке
// состояние восстанавливается из снимка.
type memStore struct {
	txMu sync.Mutex
	data *memData
}

type memData struct {
	mu           sync.Mutex
	loans        map[uuid.UUID]model.LoanApplication
	repayments   map[uuid.UUID]model.LoanRepayment
	accounts     map[string]model.Account
	users        map[uuid.UUID]model.User
	transactions []model.Transaction
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		loans:      map[uuid.UUID]model.LoanApplication{},
		repayments: map[uuid.UUID]model.LoanRepayment{},
		accounts:   map[string]model.Account{},
		users:      map[uuid.UUID]model.User{},
	}}
}

func (s *memStore) Repos() repository.Repos {
	return repository.Repos{
		Loans:        memLoans{s.data},
		Accounts:     memAccounts{s.data},
		Transactions: memTransactions{s.data},
		Users:        memUsers{s.data},
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.data.snapshot()
	if err := fn(s.Repos()); err != nil {
		s.data.restore(snapshot)
		return err
	}
	return nil
}

type memSnapshot struct {
	loans        map[uuid.UUID]model.LoanApplication
	repayments   map[uuid.UUID]model.LoanRepayment
	accounts     map[string]model.Account
	transactions []model.Transaction
}

func (d *memData) snapshot() memSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := memSnapshot{
		loans:        make(map[uuid.UUID]model.LoanApplication, len(d.loans)),
		repayments:   make(map[uuid.UUID]model.LoanRepayment, len(d.repayments)),
		accounts:     make(map[string]model.Account, len(d.accounts)),
		transactions: append([]model.Transaction(nil), d.transactions...),
	}
	for k, v := range d.loans {
		s.loans[k] = v
	}
	for k, v := range d.repayments {
		s.repayments[k] = v
	}
	for k, v := range d.accounts {
		s.accounts[k] = v
	}
	return s
}

func (d *memData) restore(s memSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loans = s.loans
	d.repayments = s.repayments
	d.accounts = s.accounts
	d.transactions = s.transactions
}

type memLoans struct{ d *memData }

func (r memLoans) Create(ctx context.Context, loan *model.LoanApplication) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.accounts[loan.AccountID]; !ok {
		return model.ErrAccountNotFound
	}
	r.d.loans[loan.ID] = *loan
	return nil
}

func (r memLoans) GetByID(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	loan, ok := r.d.loans[id]
	if !ok {
		return nil, model.ErrLoanNotFound
	}
	return &loan, nil
}

func (r memLoans) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error) {
	return r.GetByID(ctx, id)
}

func (r memLoans) Update(ctx context.Context, loan *model.LoanApplication) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.loans[loan.ID]; !ok {
		return model.ErrLoanNotFound
	}
	r.d.loans[loan.ID] = *loan
	return nil
}

func (r memLoans) filter(keep func(model.LoanApplication) bool) []model.LoanApplication {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []model.LoanApplication
	for _, loan := range r.d.loans {
		if keep(loan) {
			out = append(out, loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r memLoans) List(ctx context.Context) ([]model.LoanApplication, error) {
	return r.filter(func(model.LoanApplication) bool { return true }), nil
}

func (r memLoans) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.LoanApplication, error) {
	return r.filter(func(l model.LoanApplication) bool { return l.UserID == userID }), nil
}

func (r memLoans) ListByStatus(ctx context.Context, status model.LoanStatus) ([]model.LoanApplication, error) {
	return r.filter(func(l model.LoanApplication) bool { return l.Status == status }), nil
}

func (r memLoans) ListByStatusStartingBy(ctx context.Context, status model.LoanStatus, date time.Time) ([]model.LoanApplication, error) {
	return r.filter(func(l model.LoanApplication) bool {
		return l.Status == status && !l.StartDate.After(model.DateOf(date))
	}), nil
}

func (r memLoans) CreateRepayments(ctx context.Context, repayments []model.LoanRepayment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, existing := range r.d.repayments {
		for _, rp := range repayments {
			if existing.LoanID == rp.LoanID && existing.Period == rp.Period {
				return fmt.Errorf("%w: schedule already exists for loan %s", model.ErrInvalidTransition, rp.LoanID)
			}
		}
	}
	for _, rp := range repayments {
		r.d.repayments[rp.ID] = rp
	}
	return nil
}

func (r memLoans) GetRepaymentForUpdate(ctx context.Context, id uuid.UUID) (*model.LoanRepayment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	rp, ok := r.d.repayments[id]
	if !ok {
		return nil, model.ErrRepaymentNotFound
	}
	return &rp, nil
}

func (r memLoans) GetRepaymentByLoanAndDateForUpdate(ctx context.Context, loanID uuid.UUID, date time.Time) (*model.LoanRepayment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, rp := range r.d.repayments {
		if rp.LoanID == loanID && rp.RepaymentDate.Equal(model.DateOf(date)) {
			return &rp, nil
		}
	}
	return nil, model.ErrRepaymentNotFound
}

func (r memLoans) UpdateRepayment(ctx context.Context, repayment *model.LoanRepayment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.repayments[repayment.ID]; !ok {
		return model.ErrRepaymentNotFound
	}
	r.d.repayments[repayment.ID] = *repayment
	return nil
}

func (r memLoans) filterRepayments(keep func(model.LoanRepayment) bool) []model.LoanRepayment {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []model.LoanRepayment
	for _, rp := range r.d.repayments {
		if keep(rp) {
			out = append(out, rp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RepaymentDate.Equal(out[j].RepaymentDate) {
			return out[i].RepaymentDate.Before(out[j].RepaymentDate)
		}
		return out[i].Period < out[j].Period
	})
	return out
}

func (r memLoans) ListRepayments(ctx context.Context, loanID uuid.UUID) ([]model.LoanRepayment, error) {
	return r.filterRepayments(func(rp model.LoanRepayment) bool { return rp.LoanID == loanID }), nil
}

func (r memLoans) ListRepaymentsByStatus(ctx context.Context, status model.RepaymentStatus) ([]model.LoanRepayment, error) {
	return r.filterRepayments(func(rp model.LoanRepayment) bool { return rp.Status == status }), nil
}

func (r memLoans) ListRepaymentsByStatusAndDate(ctx context.Context, status model.RepaymentStatus, date time.Time) ([]model.LoanRepayment, error) {
	return r.filterRepayments(func(rp model.LoanRepayment) bool {
		return rp.Status == status && rp.RepaymentDate.Equal(model.DateOf(date))
	}), nil
}

func (r memLoans) ListRepaymentsDueBefore(ctx context.Context, status model.RepaymentStatus, date time.Time) ([]model.LoanRepayment, error) {
	return r.filterRepayments(func(rp model.LoanRepayment) bool {
		return rp.Status == status && rp.RepaymentDate.Before(model.DateOf(date))
	}), nil
}

func (r memLoans) CountRepayments(ctx context.Context, loanID uuid.UUID, statuses ...model.RepaymentStatus) (int, error) {
	return len(r.filterRepayments(func(rp model.LoanRepayment) bool {
		if rp.LoanID != loanID {
			return false
		}
		for _, s := range statuses {
			if rp.Status == s {
				return true
			}
		}
		return false
	})), nil
}

type memAccounts struct{ d *memData }

func (r memAccounts) GetByID(ctx context.Context, id string) (*model.Account, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	account, ok := r.d.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return &account, nil
}

func (r memAccounts) GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error) {
	return r.GetByID(ctx, id)
}

func (r memAccounts) UpdateBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	account, ok := r.d.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	account.Balance = account.Balance.Add(delta)
	if account.Balance.IsNegative() {
		return fmt.Errorf("balance of %s would become negative", id)
	}
	r.d.accounts[id] = account
	return nil
}

func (r memAccounts) MarkOverdue(ctx context.Context, id string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	account, ok := r.d.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	account.HasOverdue = true
	r.d.accounts[id] = account
	return nil
}

type memTransactions struct{ d *memData }

func (r memTransactions) Create(ctx context.Context, transaction *model.Transaction) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.transactions = append(r.d.transactions, *transaction)
	return nil
}

type memUsers struct{ d *memData }

func (r memUsers) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	user, ok := r.d.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &user, nil
}

// testEnv сервисы поверх memStore с управляемыми часами
type testEnv struct {
	t      *testing.T
	store  *memStore
	ledger *LedgerService
	loans  *LoanService
	now    time.Time
	userID uuid.UUID
}

const (
	floatAccount    = "LOAN_BANK_ACCOUNT"
	borrowerAccount = "ACC-1"
)

func newTestEnv(t *testing.T, today string) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	env := &testEnv{
		t:      t,
		store:  newMemStore(),
		ledger: NewLedgerService(logger),
		userID: uuid.New(),
	}
	env.setToday(today)
	env.loans = NewLoanService(env.store, env.ledger, nil, nil, DefaultLoanPolicy(),
		func() time.Time { return env.now }, logger)

	env.store.data.users[env.userID] = model.User{ID: env.userID, Username: "borrower", Email: "borrower@example.com"}
	env.addAccount(floatAccount, uuid.New(), "1000000.00")
	env.addAccount(borrowerAccount, env.userID, "5000.00")
	return env
}

// setToday переводит часы на 10:30 UTC указанного дня
func (e *testEnv) setToday(day string) {
	d := date(e.t, day)
	e.now = d.Add(10*time.Hour + 30*time.Minute)
}

func (e *testEnv) addAccount(id string, owner uuid.UUID, balance string) {
	e.store.data.accounts[id] = model.Account{
		ID:      id,
		UserID:  owner,
		Balance: decimal.RequireFromString(balance),
		Status:  model.AccountStatusActive,
	}
}

func (e *testEnv) setAccountStatus(id string, status model.AccountStatus) {
	e.store.data.mu.Lock()
	defer e.store.data.mu.Unlock()
	account := e.store.data.accounts[id]
	account.Status = status
	e.store.data.accounts[id] = account
}

func (e *testEnv) account(id string) model.Account {
	e.store.data.mu.Lock()
	defer e.store.data.mu.Unlock()
	return e.store.data.accounts[id]
}

func (e *testEnv) loan(id uuid.UUID) model.LoanApplication {
	e.store.data.mu.Lock()
	defer e.store.data.mu.Unlock()
	return e.store.data.loans[id]
}

func (e *testEnv) repayment(id uuid.UUID) model.LoanRepayment {
	e.store.data.mu.Lock()
	defer e.store.data.mu.Unlock()
	return e.store.data.repayments[id]
}

func (e *testEnv) legs(referenceID uuid.UUID) []model.Transaction {
	e.store.data.mu.Lock()
	defer e.store.data.mu.Unlock()
	var out []model.Transaction
	for _, tx := range e.store.data.transactions {
		if tx.ReferenceID != nil && *tx.ReferenceID == referenceID {
			out = append(out, tx)
		}
	}
	return out
}

// seedLoan кладет в хранилище выданный кредит с заданным графиком
func (e *testEnv) seedLoan(status model.LoanStatus, schedule ...model.LoanRepayment) model.LoanApplication {
	principal := decimal.Zero
	for _, rp := range schedule {
		principal = principal.Add(rp.Principal)
	}
	loan := model.LoanApplication{
		ID:                 uuid.New(),
		UserID:             e.userID,
		AccountID:          borrowerAccount,
		Amount:             principal,
		Term:               len(schedule),
		InterestRate:       decimal.NewFromInt(5),
		StartDate:          schedule[0].RepaymentDate,
		EndDate:            schedule[len(schedule)-1].RepaymentDate,
		MonthlyPayment:     schedule[0].Amount,
		RemainingPrincipal: principal,
		Status:             status,
	}

	e.store.data.mu.Lock()
	defer e.store.data.mu.Unlock()
	e.store.data.loans[loan.ID] = loan
	for i, rp := range schedule {
		rp.ID = uuid.New()
		rp.LoanID = loan.ID
		rp.Period = i + 1
		if rp.Status == "" {
			rp.Status = model.RepaymentStatusPending
		}
		e.store.data.repayments[rp.ID] = rp
	}
	return loan
}

func (e *testEnv) schedule(loanID uuid.UUID) []model.LoanRepayment {
	out, err := e.store.Repos().Loans.ListRepayments(context.Background(), loanID)
	require.NoError(e.t, err)
	return out
}

// installment платеж 1050.00 = 1000.00 основного долга + 50.00 процентов
func installment(t *testing.T, day string) model.LoanRepayment {
	return model.LoanRepayment{
		RepaymentDate: date(t, day),
		Amount:        decimal.RequireFromString("1050.00"),
		Principal:     decimal.RequireFromString("1000.00"),
		Interest:      decimal.RequireFromString("50.00"),
		LateFee:       decimal.Zero,
	}
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
