package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flint/internal/domain/account"
	"flint/internal/domain/user"
	"flint/internal/shared/middleware"
)

type mockBankAccountRepo struct {
	CreateFunc       func(ctx context.Context, params account.CreateParams) (*account.BankAccount, error)
	ListByUserIDFunc func(ctx context.Context, userID int64) ([]*account.BankAccount, error)
	CountFunc        func(ctx context.Context, userID int64) (int, error)
	ExistsFunc       func(ctx context.Context, userID int64, providerAccountID string) (bool, error)
	DeleteFunc       func(ctx context.Context, userID int64, id string) error
}

func (m *mockBankAccountRepo) Create(ctx context.Context, params account.CreateParams) (*account.BankAccount, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &account.BankAccount{ID: params.ID, UserID: params.UserID, ProviderAccountID: params.ProviderAccountID}, nil
}

func (m *mockBankAccountRepo) GetByID(ctx context.Context, userID int64, id string) (*account.BankAccount, error) {
	return nil, account.ErrAccountNotFound
}

func (m *mockBankAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.BankAccount, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockBankAccountRepo) CountByUserID(ctx context.Context, userID int64) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, userID)
	}
	return 0, nil
}

func (m *mockBankAccountRepo) ExistsByProviderAccountID(ctx context.Context, userID int64, providerAccountID string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, userID, providerAccountID)
	}
	return false, nil
}

func (m *mockBankAccountRepo) UpdateCachedBalance(ctx context.Context, id string, balance float64, at time.Time) error {
	return nil
}

func (m *mockBankAccountRepo) Delete(ctx context.Context, userID int64, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, id)
	}
	return nil
}

type mockUserRepo struct {
	GetByIDFunc func(ctx context.Context, id int64) (*user.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, params user.CreateUserParams) (*user.User, error) {
	return nil, nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &user.User{ID: id, Tier: user.TierFree}, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return nil, user.ErrUserNotFound
}

func (m *mockUserRepo) List(ctx context.Context) ([]*user.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Update(ctx context.Context, userID int64, params user.UpdateUserParams) (*user.User, error) {
	return nil, nil
}

type fixedCounter int

func (f fixedCounter) CountByUserID(ctx context.Context, userID int64) (int, error) {
	return int(f), nil
}

func linkRequest(t *testing.T, userID int64, accounts []account.LinkAccountParams) *http.Request {
	t.Helper()
	body, err := json.Marshal(LinkAccountsRequest{Accounts: accounts})
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/accounts/link", bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestHandleLinkAccountsPartialBatch(t *testing.T) {
	// Free tier allows 2 connections and one slot is already taken by a
	// brokerage connection, so a batch of 2 saves 1 and rejects 1.
	repo := &mockBankAccountRepo{}
	handler := NewAccountHandler(account.NewLinker(repo, &mockUserRepo{}, fixedCounter(1)), repo, &mockConnectionRepo{}, nil)

	batch := []account.LinkAccountParams{
		{ProviderAccountID: "p-1", Name: "Checking", AccessToken: "tok-1"},
		{ProviderAccountID: "p-2", Name: "Savings", AccessToken: "tok-2"},
	}

	rr := httptest.NewRecorder()
	handler.HandleLinkAccounts(rr, linkRequest(t, 1, batch))

	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("got status %d, want 207", rr.Code)
	}

	var report account.LinkReport
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.AccountsSaved != 1 || report.AccountsRejected != 1 {
		t.Errorf("saved=%d rejected=%d, want 1 and 1", report.AccountsSaved, report.AccountsRejected)
	}
}

func TestHandleLinkAccountsDuplicatesConsumeNoSlot(t *testing.T) {
	repo := &mockBankAccountRepo{
		ExistsFunc: func(ctx context.Context, userID int64, providerAccountID string) (bool, error) {
			return providerAccountID == "p-dupe", nil
		},
	}
	handler := NewAccountHandler(account.NewLinker(repo, &mockUserRepo{}, fixedCounter(0)), repo, &mockConnectionRepo{}, nil)

	batch := []account.LinkAccountParams{
		{ProviderAccountID: "p-dupe", AccessToken: "tok-1"},
		{ProviderAccountID: "p-new", AccessToken: "tok-2"},
	}

	rr := httptest.NewRecorder()
	handler.HandleLinkAccounts(rr, linkRequest(t, 1, batch))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}

	var report account.LinkReport
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.AccountsSaved != 1 || report.Duplicates != 1 || report.AccountsRejected != 0 {
		t.Errorf("saved=%d duplicates=%d rejected=%d, want 1, 1, 0",
			report.AccountsSaved, report.Duplicates, report.AccountsRejected)
	}
}

func TestHandleLinkAccountsValidation(t *testing.T) {
	repo := &mockBankAccountRepo{}
	handler := NewAccountHandler(account.NewLinker(repo, &mockUserRepo{}, fixedCounter(0)), repo, &mockConnectionRepo{}, nil)

	tests := []struct {
		name           string
		batch          []account.LinkAccountParams
		expectedStatus int
	}{
		{
			name:           "Empty Batch",
			batch:          nil,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "Missing Access Token",
			batch: []account.LinkAccountParams{
				{ProviderAccountID: "p-1"},
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.HandleLinkAccounts(rr, linkRequest(t, 1, tt.batch))

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestHandleDisconnectAccount(t *testing.T) {
	tests := []struct {
		name             string
		provider         string
		id               string
		accountDeleteErr error
		connDeleteErr    error
		expectedStatus   int
	}{
		{
			name:           "Bank Account",
			provider:       "bank",
			id:             "acc-1",
			expectedStatus: http.StatusNoContent,
		},
		{
			name:             "Bank Account Not Found",
			provider:         "bank",
			id:               "acc-999",
			accountDeleteErr: account.ErrAccountNotFound,
			expectedStatus:   http.StatusNotFound,
		},
		{
			name:           "Brokerage Connection",
			provider:       "brokerage",
			id:             "auth-1",
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "Unknown Provider",
			provider:       "crypto",
			id:             "acc-1",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockBankAccountRepo{
				DeleteFunc: func(ctx context.Context, userID int64, id string) error {
					return tt.accountDeleteErr
				},
			}
			conns := &mockConnectionRepo{
				DeleteFunc: func(ctx context.Context, userID int64, authorizationID string) error {
					return tt.connDeleteErr
				},
			}
			handler := NewAccountHandler(account.NewLinker(repo, &mockUserRepo{}, fixedCounter(0)), repo, conns, nil)

			req := httptest.NewRequest(http.MethodDelete, "/api/accounts/"+tt.provider+"/"+tt.id, nil)
			req.SetPathValue("provider", tt.provider)
			req.SetPathValue("id", tt.id)
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, int64(1))
			req = req.WithContext(ctx)

			rr := httptest.NewRecorder()
			handler.HandleDisconnectAccount(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}
