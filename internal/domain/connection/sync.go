package connection

import (
	"context"
	"errors"
	"log"
	"net/http"

	"flint/internal/domain/identity"
	"flint/internal/infrastructure/aggregator"
	"flint/internal/shared/apperr"
)

// ErrNotYetVisible is returned by SyncOne when the requested authorization
// is absent from the provider's current list. The provider lags behind its
// own OAuth redirect, so callers should retry rather than treat this as a
// failed link.
var ErrNotYetVisible = errors.New("authorization not yet visible at provider")

// AuthorizationLister is the slice of the aggregator API the synchronizer
// needs.
type AuthorizationLister interface {
	ListAuthorizations(ctx context.Context, providerUserID, providerSecret string) ([]aggregator.Authorization, error)
}

// SyncResult reports one sync run.
type SyncResult struct {
	UserID      int64         `json:"userId"`
	Found       int           `json:"found"`
	Created     int           `json:"created"`
	Updated     int           `json:"updated"`
	Skipped     int           `json:"skipped"`
	Connections []*Connection `json:"connections"`
}

// SyncService pulls the provider's authorization list and reconciles it
// into local connection rows.
type SyncService struct {
	repo       Repository
	identities identity.Repository
	client     AuthorizationLister
}

func NewSyncService(repo Repository, identities identity.Repository, client AuthorizationLister) *SyncService {
	return &SyncService{repo: repo, identities: identities, client: client}
}

// SyncAll upserts every authorization the provider currently reports for
// the user. Records whose authorization id cannot be resolved are skipped
// with a warning; they carry nothing stable to key on.
func (s *SyncService) SyncAll(ctx context.Context, userID int64) (*SyncResult, error) {
	auths, err := s.fetchAuthorizations(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{UserID: userID, Found: len(auths)}

	for _, auth := range auths {
		conn, created, err := s.upsertAuthorization(ctx, userID, auth)
		if err != nil {
			if errors.Is(err, errNoAuthorizationID) {
				result.Skipped++
				continue
			}
			return nil, err
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		result.Connections = append(result.Connections, conn)
	}

	log.Printf("User %d: Connection sync complete - found %d, created %d, updated %d, skipped %d",
		userID, result.Found, result.Created, result.Updated, result.Skipped)

	return result, nil
}

// SyncOne is the mobile OAuth callback path: same reconciliation restricted
// to a single authorization id.
func (s *SyncService) SyncOne(ctx context.Context, userID int64, authorizationID string) (*Connection, error) {
	auths, err := s.fetchAuthorizations(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, auth := range auths {
		ref, ok := aggregator.AuthorizationRef(auth)
		if !ok || ref != authorizationID {
			continue
		}
		conn, _, err := s.upsertAuthorization(ctx, userID, auth)
		return conn, err
	}

	return nil, apperr.Wrap(apperr.CodeServiceUnavailable,
		"connection is not visible at the provider yet, retry shortly", ErrNotYetVisible)
}

var errNoAuthorizationID = errors.New("no resolvable authorization id")

func (s *SyncService) upsertAuthorization(ctx context.Context, userID int64, auth aggregator.Authorization) (*Connection, bool, error) {
	ref, ok := aggregator.AuthorizationRef(auth)
	if !ok {
		log.Printf("User %d: Skipping authorization with no resolvable id (institution %q)",
			userID, aggregator.InstitutionOf(auth))
		return nil, false, errNoAuthorizationID
	}

	conn, created, err := s.repo.Upsert(ctx, UpsertParams{
		UserID:          userID,
		AuthorizationID: ref,
		InstitutionName: aggregator.InstitutionOf(auth),
		Disabled:        auth.Disabled,
	})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.CodeInternal, "failed to persist connection", err)
	}
	return conn, created, nil
}

func (s *SyncService) fetchAuthorizations(ctx context.Context, userID int64) ([]aggregator.Authorization, error) {
	// Secrets are re-read on every sync so rotation takes effect
	// immediately.
	ident, err := s.identities.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, apperr.New(apperr.CodeNotRegistered, "no provider registration, register first")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read registration", err)
	}

	auths, err := s.client.ListAuthorizations(ctx, ident.ProviderUserID, ident.ProviderSecret)
	if err != nil {
		var apiErr *aggregator.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusTooManyRequests:
				return nil, apperr.RateLimited(apiErr.RetryAfter)
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, apperr.Wrap(apperr.CodeServiceUnavailable,
					"aggregation provider rejected stored credentials", err)
			}
		}
		return nil, apperr.Wrap(apperr.CodeServiceUnavailable, "could not reach aggregation provider", err)
	}

	return auths, nil
}
