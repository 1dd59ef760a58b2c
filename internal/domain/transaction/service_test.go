package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flint/internal/domain/account"
	"flint/internal/infrastructure/bankapi"
)

type memTxnRepo struct {
	mu   sync.Mutex
	rows map[string]*Transaction
}

func newMemTxnRepo() *memTxnRepo {
	return &memTxnRepo{rows: make(map[string]*Transaction)}
}

func (r *memTxnRepo) UpsertBatch(ctx context.Context, txns []UpsertParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range txns {
		r.rows[p.ID] = &Transaction{
			ID: p.ID, UserID: p.UserID, AccountID: p.AccountID, Date: p.Date,
			Description: p.Description, MerchantName: p.MerchantName,
			Amount: p.Amount, Category: p.Category, Status: p.Status,
		}
	}
	return nil
}

func (r *memTxnRepo) ListByUserID(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Transaction
	for _, t := range r.rows {
		if t.UserID == userID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memTxnRepo) ListByAccountID(ctx context.Context, userID int64, accountID string) ([]*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Transaction
	for _, t := range r.rows {
		if t.UserID == userID && t.AccountID == accountID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

type stubAccountRepo struct {
	accounts []*account.BankAccount
}

func (r *stubAccountRepo) Create(ctx context.Context, params account.CreateParams) (*account.BankAccount, error) {
	return nil, errors.New("not implemented")
}

func (r *stubAccountRepo) GetByID(ctx context.Context, userID int64, id string) (*account.BankAccount, error) {
	return nil, account.ErrAccountNotFound
}

func (r *stubAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.BankAccount, error) {
	return r.accounts, nil
}

func (r *stubAccountRepo) CountByUserID(ctx context.Context, userID int64) (int, error) {
	return len(r.accounts), nil
}

func (r *stubAccountRepo) ExistsByProviderAccountID(ctx context.Context, userID int64, providerAccountID string) (bool, error) {
	return false, nil
}

func (r *stubAccountRepo) UpdateCachedBalance(ctx context.Context, id string, balance float64, at time.Time) error {
	return nil
}

func (r *stubAccountRepo) Delete(ctx context.Context, userID int64, id string) error {
	return errors.New("not implemented")
}

type mockBank struct {
	getTransactionsFunc func(ctx context.Context, accessToken, accountID string) ([]bankapi.Transaction, error)
}

func (m *mockBank) ListAccounts(ctx context.Context, accessToken string) ([]bankapi.Account, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBank) GetAccount(ctx context.Context, accessToken, accountID string) (*bankapi.Account, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBank) GetBalances(ctx context.Context, accessToken, accountID string) (*bankapi.Balance, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBank) GetTransactions(ctx context.Context, accessToken, accountID string) ([]bankapi.Transaction, error) {
	return m.getTransactionsFunc(ctx, accessToken, accountID)
}

func bankTxn(id, date, amount, merchant string) bankapi.Transaction {
	t := bankapi.Transaction{
		ID:           id,
		Date:         date,
		Description:  merchant,
		AmountString: amount,
		Status:       "posted",
	}
	if merchant != "" {
		t.Details = bankapi.TransactionDetails{
			Counterparty: &bankapi.Counterparty{Name: merchant},
		}
	}
	return t
}

func TestListForUser_LiveFetchPersistsCache(t *testing.T) {
	repo := newMemTxnRepo()
	accounts := &stubAccountRepo{accounts: []*account.BankAccount{
		{ID: "a1", UserID: 1, ProviderAccountID: "acc_1", AccessToken: "tok"},
	}}
	bank := &mockBank{
		getTransactionsFunc: func(ctx context.Context, accessToken, accountID string) ([]bankapi.Transaction, error) {
			return []bankapi.Transaction{
				bankTxn("t1", "2026-08-03", "-15.49", "Netflix"),
				bankTxn("t2", "2026-08-10", "-42.00", "Grocer"),
			}, nil
		},
	}

	svc := NewService(repo, accounts, bank)
	result, err := svc.ListForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListForUser() failed: %v", err)
	}

	if result.Stale {
		t.Error("live fetch must not be marked stale")
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(result.Transactions))
	}
	// Newest first.
	if result.Transactions[0].ID != "t2" {
		t.Errorf("expected newest transaction first, got %s", result.Transactions[0].ID)
	}

	cached, _ := repo.ListByAccountID(context.Background(), 1, "a1")
	if len(cached) != 2 {
		t.Errorf("expected live fetch persisted to cache, got %d rows", len(cached))
	}
}

func TestListForUser_ExpiredGrantServesCache(t *testing.T) {
	repo := newMemTxnRepo()
	repo.UpsertBatch(context.Background(), []UpsertParams{
		{ID: "old1", UserID: 1, AccountID: "a1", Date: time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC),
			Description: "NETFLIX.COM", Amount: -15.49},
	})

	accounts := &stubAccountRepo{accounts: []*account.BankAccount{
		{ID: "a1", UserID: 1, ProviderAccountID: "acc_1", AccessToken: "stale"},
	}}
	bank := &mockBank{
		getTransactionsFunc: func(ctx context.Context, accessToken, accountID string) ([]bankapi.Transaction, error) {
			return nil, bankapi.ErrExpiredGrant
		},
	}

	svc := NewService(repo, accounts, bank)
	result, err := svc.ListForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListForUser() failed: %v", err)
	}

	if !result.Stale {
		t.Error("cached fallback must be marked stale")
	}
	if len(result.Transactions) != 1 || result.Transactions[0].ID != "old1" {
		t.Errorf("expected cached transaction served, got %+v", result.Transactions)
	}
}

func TestListForUser_SkipsMalformedRecords(t *testing.T) {
	repo := newMemTxnRepo()
	accounts := &stubAccountRepo{accounts: []*account.BankAccount{
		{ID: "a1", UserID: 1, ProviderAccountID: "acc_1", AccessToken: "tok"},
	}}
	bank := &mockBank{
		getTransactionsFunc: func(ctx context.Context, accessToken, accountID string) ([]bankapi.Transaction, error) {
			return []bankapi.Transaction{
				bankTxn("good", "2026-08-03", "-10.00", "Shop"),
				bankTxn("bad-amount", "2026-08-04", "not-a-number", "Shop"),
				bankTxn("bad-date", "08/05/2026", "-5.00", "Shop"),
			}, nil
		},
	}

	svc := NewService(repo, accounts, bank)
	result, err := svc.ListForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListForUser() failed: %v", err)
	}

	if len(result.Transactions) != 1 || result.Transactions[0].ID != "good" {
		t.Errorf("expected only the parseable transaction, got %+v", result.Transactions)
	}
}
