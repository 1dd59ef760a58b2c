package transaction

import (
	"context"
	"errors"
	"log"
	"sort"

	"flint/internal/domain/account"
	"flint/internal/infrastructure/bankapi"
	"flint/internal/shared/apperr"
)

const defaultListLimit = 500

// Service fetches live transactions from the bank provider, persists them,
// and degrades to the persisted copy when a grant has expired.
type Service struct {
	repo     Repository
	accounts account.Repository
	bank     bankapi.ClientInterface
}

func NewService(repo Repository, accounts account.Repository, bank bankapi.ClientInterface) *Service {
	return &Service{repo: repo, accounts: accounts, bank: bank}
}

// ListResult carries the merged history plus per-account fetch degradation.
type ListResult struct {
	Transactions []*Transaction `json:"transactions"`
	Stale        bool           `json:"stale"` // true when any account served cached data
}

// ListForUser returns transaction history across the user's bank accounts,
// newest first. Accounts whose live fetch fails with an expired grant fall
// back to cached rows; other fetch failures degrade the same way but are
// logged as provider trouble.
func (s *Service) ListForUser(ctx context.Context, userID int64) (*ListResult, error) {
	accs, err := s.accounts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to list accounts", err)
	}

	result := &ListResult{}

	for _, acc := range accs {
		live, err := s.bank.GetTransactions(ctx, acc.AccessToken, acc.ProviderAccountID)
		if err != nil {
			if errors.Is(err, bankapi.ErrExpiredGrant) {
				log.Printf("User %d: Bank grant expired for account %s, serving cached transactions", userID, acc.ID)
			} else {
				log.Printf("User %d: Transaction fetch failed for account %s, serving cached: %v", userID, acc.ID, err)
			}
			cached, cacheErr := s.repo.ListByAccountID(ctx, userID, acc.ID)
			if cacheErr != nil {
				return nil, apperr.Wrap(apperr.CodeInternal, "failed to read cached transactions", cacheErr)
			}
			result.Transactions = append(result.Transactions, cached...)
			result.Stale = true
			continue
		}

		fresh, err := s.persist(ctx, userID, acc.ID, live)
		if err != nil {
			return nil, err
		}
		result.Transactions = append(result.Transactions, fresh...)
	}

	sort.SliceStable(result.Transactions, func(i, j int) bool {
		return result.Transactions[i].Date.After(result.Transactions[j].Date)
	})
	if len(result.Transactions) > defaultListLimit {
		result.Transactions = result.Transactions[:defaultListLimit]
	}

	return result, nil
}

func (s *Service) persist(ctx context.Context, userID int64, accountID string, live []bankapi.Transaction) ([]*Transaction, error) {
	batch := make([]UpsertParams, 0, len(live))
	out := make([]*Transaction, 0, len(live))

	for _, t := range live {
		amount, err := t.Amount()
		if err != nil {
			log.Printf("User %d: Skipping transaction %s with unparseable amount: %v", userID, t.ID, err)
			continue
		}
		date, err := t.ParsedDate()
		if err != nil {
			log.Printf("User %d: Skipping transaction %s with unparseable date: %v", userID, t.ID, err)
			continue
		}

		params := UpsertParams{
			ID:           t.ID,
			UserID:       userID,
			AccountID:    accountID,
			Date:         date,
			Description:  t.Description,
			MerchantName: t.MerchantName(),
			Amount:       amount,
			Category:     t.Details.Category,
			Status:       t.Status,
		}
		batch = append(batch, params)
		out = append(out, &Transaction{
			ID:           params.ID,
			UserID:       params.UserID,
			AccountID:    params.AccountID,
			Date:         params.Date,
			Description:  params.Description,
			MerchantName: params.MerchantName,
			Amount:       params.Amount,
			Category:     params.Category,
			Status:       params.Status,
		})
	}

	if len(batch) > 0 {
		if err := s.repo.UpsertBatch(ctx, batch); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to cache transactions", err)
		}
	}

	return out, nil
}
