package account

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"flint/internal/domain/policy"
	"flint/internal/domain/user"
	"flint/internal/shared/apperr"
)

// ConnectionCounter reports how many brokerage connections a user holds;
// bank accounts and brokerage connections share one tier limit.
type ConnectionCounter interface {
	CountByUserID(ctx context.Context, userID int64) (int, error)
}

// Linker persists new bank account links under the tier limit.
type Linker struct {
	accounts    Repository
	users       user.Repository
	connections ConnectionCounter
}

func NewLinker(accounts Repository, users user.Repository, connections ConnectionCounter) *Linker {
	return &Linker{accounts: accounts, users: users, connections: connections}
}

// LinkAccounts links a batch of bank accounts for the user. Already-linked
// accounts count as duplicates and consume no slot. When the batch exceeds
// the remaining slots, accounts are accepted in input order until the slots
// run out and the rest are rejected; the report carries both counts.
func (l *Linker) LinkAccounts(ctx context.Context, userID int64, batch []LinkAccountParams) (*LinkReport, error) {
	if len(batch) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "no accounts to link")
	}
	for _, params := range batch {
		if params.ProviderAccountID == "" || params.AccessToken == "" {
			return nil, apperr.New(apperr.CodeValidation, "each account needs a provider account id and access token")
		}
	}

	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, apperr.New(apperr.CodeUnauthorized, "unknown user")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read user", err)
	}

	bankCount, err := l.accounts.CountByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to count linked accounts", err)
	}
	brokerageCount, err := l.connections.CountByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to count connections", err)
	}

	remaining := policy.RemainingSlots(u.Tier, u.IsAdmin, bankCount+brokerageCount)

	report := &LinkReport{}
	for _, params := range batch {
		exists, err := l.accounts.ExistsByProviderAccountID(ctx, userID, params.ProviderAccountID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to check for duplicate account", err)
		}
		if exists {
			report.Duplicates++
			continue
		}

		if remaining != policy.Unlimited && report.AccountsSaved >= remaining {
			report.AccountsRejected++
			continue
		}

		created, err := l.accounts.Create(ctx, CreateParams{
			ID:                uuid.NewString(),
			UserID:            userID,
			ProviderAccountID: params.ProviderAccountID,
			Name:              params.Name,
			AccountType:       params.AccountType,
			Subtype:           params.Subtype,
			InstitutionName:   params.InstitutionName,
			Currency:          params.Currency,
			AccessToken:       params.AccessToken,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to persist linked account", err)
		}

		report.AccountsSaved++
		report.Accounts = append(report.Accounts, created)
	}

	log.Printf("User %d: Linked %d accounts, rejected %d over tier limit, %d duplicates",
		userID, report.AccountsSaved, report.AccountsRejected, report.Duplicates)

	return report, nil
}
