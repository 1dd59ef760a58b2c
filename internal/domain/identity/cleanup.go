package identity

import (
	"context"
	"errors"
	"log"

	"flint/internal/infrastructure/aggregator"
)

// AccountLister is the slice of the aggregator API the cleanup sweep needs.
type AccountLister interface {
	ListAccounts(ctx context.Context, providerUserID, providerSecret string) ([]aggregator.Account, error)
	DeleteIdentity(ctx context.Context, providerUserID string) error
}

// CleanupService sweeps for orphaned registrations: identities created when
// a user started the connect flow but never linked an institution. They
// count against provider quotas, so the sweep removes both sides.
type CleanupService struct {
	repo   Repository
	client AccountLister
}

func NewCleanupService(repo Repository, client AccountLister) *CleanupService {
	return &CleanupService{repo: repo, client: client}
}

// SweepResult reports one sweep run.
type SweepResult struct {
	Checked int
	Removed int
	Errors  []string
}

// Sweep checks every stored identity against the provider and removes those
// with zero linked accounts. Provider delete failures are logged and local
// cleanup proceeds regardless; provider-side deletion is eventually
// consistent. Listing failures skip the identity, never remove it.
func (s *CleanupService) Sweep(ctx context.Context) (*SweepResult, error) {
	identities, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Checked: len(identities)}

	for _, ident := range identities {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		accounts, err := s.client.ListAccounts(ctx, ident.ProviderUserID, ident.ProviderSecret)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			log.Printf("Cleanup: user %d: could not list provider accounts, skipping: %v", ident.UserID, err)
			continue
		}
		if len(accounts) > 0 {
			continue
		}

		if err := s.client.DeleteIdentity(ctx, ident.ProviderUserID); err != nil {
			log.Printf("Cleanup: user %d: provider delete failed, removing local row anyway: %v", ident.UserID, err)
		}
		if err := s.repo.DeleteByUserID(ctx, ident.UserID); err != nil && !errors.Is(err, ErrIdentityNotFound) {
			result.Errors = append(result.Errors, err.Error())
			log.Printf("Cleanup: user %d: failed to delete local registration: %v", ident.UserID, err)
			continue
		}

		result.Removed++
		log.Printf("Cleanup: user %d: removed orphaned registration", ident.UserID)
	}

	log.Printf("Cleanup sweep complete: checked %d, removed %d, errors %d",
		result.Checked, result.Removed, len(result.Errors))

	return result, nil
}
