package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"flint/internal/infrastructure/aggregator"
	"flint/internal/shared/apperr"
)

// ProviderClient is the slice of the aggregator API the registrar needs.
type ProviderClient interface {
	RegisterIdentity(ctx context.Context, internalUserRef string) (*aggregator.Identity, error)
	DeleteIdentity(ctx context.Context, providerUserID string) error
}

// Notifier receives repair events. May be nil.
type Notifier interface {
	IdentityRepaired(ctx context.Context, userID int64)
}

// Registrar guarantees at-most-one provider registration per user. All
// callers of EnsureIdentity converge on the same stored secret, no matter
// how many run concurrently.
type Registrar struct {
	repo     Repository
	locker   Locker
	client   ProviderClient
	notifier Notifier
}

func NewRegistrar(repo Repository, locker Locker, client ProviderClient, notifier Notifier) *Registrar {
	return &Registrar{
		repo:     repo,
		locker:   locker,
		client:   client,
		notifier: notifier,
	}
}

// UserRef builds the provider-side user reference for an internal user id.
func UserRef(userID int64) string {
	return fmt.Sprintf("flint-%d", userID)
}

func lockKey(userID int64) string {
	return fmt.Sprintf("identity:%d", userID)
}

// EnsureIdentity returns the user's provider registration, creating it if
// absent. The create path holds an exclusive per-user lock: with N
// concurrent callers exactly one provider registration call succeeds and
// every caller receives the identical identity.
func (r *Registrar) EnsureIdentity(ctx context.Context, userID int64) (*Identity, error) {
	// Fast path: no lock, no provider call.
	ident, err := r.repo.GetByUserID(ctx, userID)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read registration", err)
	}

	var result *Identity
	lockErr := r.locker.WithExclusiveLock(ctx, lockKey(userID), func(ctx context.Context) error {
		// Another caller may have finished registration while we waited.
		existing, err := r.repo.GetByUserID(ctx, userID)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, ErrIdentityNotFound) {
			return apperr.Wrap(apperr.CodeInternal, "failed to read registration", err)
		}

		created, err := r.register(ctx, userID, true)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if lockErr != nil {
		var ae *apperr.Error
		if errors.As(lockErr, &ae) {
			return nil, lockErr
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "registration failed", lockErr)
	}

	return result, nil
}

// register performs one provider registration attempt and persists the
// result. When the provider reports the reference as already registered but
// no local row exists, the states have diverged (a previous registration
// committed provider-side only): delete the provider identity plus any local
// leftovers and retry exactly once.
func (r *Registrar) register(ctx context.Context, userID int64, allowRecovery bool) (*Identity, error) {
	ref := UserRef(userID)

	provIdent, err := r.client.RegisterIdentity(ctx, ref)
	if err != nil {
		var apiErr *aggregator.APIError
		if errors.As(err, &apiErr) && apiErr.Code == aggregator.CodeIdentityExists && allowRecovery {
			return r.recoverOrphan(ctx, userID, ref)
		}
		return nil, mapProviderError(err)
	}

	ident, err := r.repo.Create(ctx, userID, provIdent.ProviderUserID, provIdent.ProviderSecret)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to persist registration", err)
	}

	log.Printf("User %d: Provider registration created", userID)
	return ident, nil
}

func (r *Registrar) recoverOrphan(ctx context.Context, userID int64, ref string) (*Identity, error) {
	log.Printf("User %d: Provider reports existing registration with no local row, repairing", userID)

	if err := r.client.DeleteIdentity(ctx, ref); err != nil {
		return nil, apperr.Wrap(apperr.CodeServiceUnavailable,
			"could not repair provider registration, try again", err)
	}
	if err := r.repo.DeleteByUserID(ctx, userID); err != nil && !errors.Is(err, ErrIdentityNotFound) {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to clear stale registration", err)
	}

	ident, err := r.register(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	if r.notifier != nil {
		r.notifier.IdentityRepaired(ctx, userID)
	}
	return ident, nil
}

// RotateSecret replaces the user's provider secret by re-registering under
// the same exclusive lock. The caller must already be registered.
func (r *Registrar) RotateSecret(ctx context.Context, userID int64) (*Identity, error) {
	var result *Identity
	lockErr := r.locker.WithExclusiveLock(ctx, lockKey(userID), func(ctx context.Context) error {
		if _, err := r.repo.GetByUserID(ctx, userID); err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return apperr.New(apperr.CodeNotRegistered, "no provider registration to rotate")
			}
			return apperr.Wrap(apperr.CodeInternal, "failed to read registration", err)
		}

		ref := UserRef(userID)
		if err := r.client.DeleteIdentity(ctx, ref); err != nil {
			return mapProviderError(err)
		}

		provIdent, err := r.client.RegisterIdentity(ctx, ref)
		if err != nil {
			return mapProviderError(err)
		}

		ident, err := r.repo.UpdateSecret(ctx, userID, provIdent.ProviderUserID, provIdent.ProviderSecret)
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, "failed to persist rotated secret", err)
		}

		log.Printf("User %d: Provider secret rotated", userID)
		result = ident
		return nil
	})
	if lockErr != nil {
		var ae *apperr.Error
		if errors.As(lockErr, &ae) {
			return nil, lockErr
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "secret rotation failed", lockErr)
	}

	return result, nil
}

// Disconnect removes the provider registration and the local row. Provider
// deletion failures are logged and do not block local removal, since the
// provider deletes asynchronously anyway.
func (r *Registrar) Disconnect(ctx context.Context, userID int64) error {
	return r.locker.WithExclusiveLock(ctx, lockKey(userID), func(ctx context.Context) error {
		if _, err := r.repo.GetByUserID(ctx, userID); err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return nil
			}
			return apperr.Wrap(apperr.CodeInternal, "failed to read registration", err)
		}

		if err := r.client.DeleteIdentity(ctx, UserRef(userID)); err != nil {
			log.Printf("User %d: Provider identity delete failed, removing local row anyway: %v", userID, err)
		}
		if err := r.repo.DeleteByUserID(ctx, userID); err != nil && !errors.Is(err, ErrIdentityNotFound) {
			return apperr.Wrap(apperr.CodeInternal, "failed to delete registration", err)
		}

		log.Printf("User %d: Provider registration removed", userID)
		return nil
	})
}

// mapProviderError normalizes aggregator failures into the API taxonomy.
// Raw provider detail stays in the wrapped cause for logs only.
func mapProviderError(err error) error {
	var apiErr *aggregator.APIError
	if !errors.As(err, &apiErr) {
		return apperr.Wrap(apperr.CodeServiceUnavailable, "aggregation provider unavailable", err)
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		rl := apperr.RateLimited(apiErr.RetryAfter)
		return rl
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return apperr.Wrap(apperr.CodeServiceUnavailable, "aggregation provider rejected our credentials", err)
	case apiErr.Code == aggregator.CodeIdentityExists:
		// Recovery already attempted; tell the caller to retry.
		return apperr.Wrap(apperr.CodeServiceUnavailable, "provider registration is being repaired, try again", err)
	default:
		return apperr.Wrap(apperr.CodeInternal, "provider registration failed", err)
	}
}
