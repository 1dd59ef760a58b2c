package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flint/internal/infrastructure/aggregator"
	"flint/internal/shared/apperr"
)

// memRepo is an in-memory credential store with the same uniqueness
// guarantee as the real one.
type memRepo struct {
	mu     sync.Mutex
	rows   map[int64]*Identity
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]*Identity)}
}

func (r *memRepo) GetByUserID(ctx context.Context, userID int64) (*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.rows[userID]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	copied := *ident
	return &copied, nil
}

func (r *memRepo) Create(ctx context.Context, userID int64, providerUserID, providerSecret string) (*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[userID]; ok {
		return nil, errors.New("duplicate identity row")
	}
	r.nextID++
	ident := &Identity{
		ID:             r.nextID,
		UserID:         userID,
		ProviderUserID: providerUserID,
		ProviderSecret: providerSecret,
		CreatedAt:      time.Now(),
	}
	r.rows[userID] = ident
	copied := *ident
	return &copied, nil
}

func (r *memRepo) UpdateSecret(ctx context.Context, userID int64, providerUserID, providerSecret string) (*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.rows[userID]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	now := time.Now()
	ident.ProviderUserID = providerUserID
	ident.ProviderSecret = providerSecret
	ident.RotatedAt = &now
	copied := *ident
	return &copied, nil
}

func (r *memRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[userID]; !ok {
		return ErrIdentityNotFound
	}
	delete(r.rows, userID)
	return nil
}

func (r *memRepo) ListAll(ctx context.Context) ([]*Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Identity, 0, len(r.rows))
	for _, ident := range r.rows {
		copied := *ident
		out = append(out, &copied)
	}
	return out, nil
}

// memLocker serializes by key with in-process mutexes, mirroring the
// advisory-lock semantics.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type mockProvider struct {
	registerFunc  func(ctx context.Context, ref string) (*aggregator.Identity, error)
	deleteFunc    func(ctx context.Context, providerUserID string) error
	registerCalls atomic.Int64
	deleteCalls   atomic.Int64
}

func (m *mockProvider) RegisterIdentity(ctx context.Context, ref string) (*aggregator.Identity, error) {
	m.registerCalls.Add(1)
	return m.registerFunc(ctx, ref)
}

func (m *mockProvider) DeleteIdentity(ctx context.Context, providerUserID string) error {
	m.deleteCalls.Add(1)
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, providerUserID)
	}
	return nil
}

func TestEnsureIdentity_ConcurrentCallersRegisterOnce(t *testing.T) {
	repo := newMemRepo()
	provider := &mockProvider{
		registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
			// Simulate provider latency so callers actually overlap.
			time.Sleep(10 * time.Millisecond)
			return &aggregator.Identity{
				ProviderUserID: ref,
				ProviderSecret: fmt.Sprintf("secret-%d", time.Now().UnixNano()),
			}, nil
		},
	}
	registrar := NewRegistrar(repo, newMemLocker(), provider, nil)

	const callers = 20
	results := make([]*Identity, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = registrar.EnsureIdentity(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
	}

	if got := provider.registerCalls.Load(); got != 1 {
		t.Errorf("expected exactly 1 provider registration call, got %d", got)
	}

	first := results[0]
	for i := 1; i < callers; i++ {
		if results[i].ProviderUserID != first.ProviderUserID || results[i].ProviderSecret != first.ProviderSecret {
			t.Errorf("caller %d got a different identity than caller 0", i)
		}
	}

	rows, _ := repo.ListAll(context.Background())
	if len(rows) != 1 {
		t.Errorf("expected exactly 1 stored row, got %d", len(rows))
	}
}

func TestEnsureIdentity_FastPathSkipsProvider(t *testing.T) {
	repo := newMemRepo()
	repo.Create(context.Background(), 1, "flint-1", "existing-secret")

	provider := &mockProvider{
		registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
			t.Fatal("provider must not be called when a row exists")
			return nil, nil
		},
	}
	registrar := NewRegistrar(repo, newMemLocker(), provider, nil)

	ident, err := registrar.EnsureIdentity(context.Background(), 1)
	if err != nil {
		t.Fatalf("EnsureIdentity() failed: %v", err)
	}
	if ident.ProviderSecret != "existing-secret" {
		t.Errorf("expected stored secret, got %q", ident.ProviderSecret)
	}
}

func TestEnsureIdentity_OrphanRecovery(t *testing.T) {
	repo := newMemRepo()

	var deleted atomic.Bool
	provider := &mockProvider{}
	provider.registerFunc = func(ctx context.Context, ref string) (*aggregator.Identity, error) {
		if !deleted.Load() {
			return nil, &aggregator.APIError{
				StatusCode: http.StatusBadRequest,
				Code:       aggregator.CodeIdentityExists,
				Message:    "user already exists",
			}
		}
		return &aggregator.Identity{ProviderUserID: ref, ProviderSecret: "fresh-secret"}, nil
	}
	provider.deleteFunc = func(ctx context.Context, providerUserID string) error {
		deleted.Store(true)
		return nil
	}

	notifier := &mockNotifier{}
	registrar := NewRegistrar(repo, newMemLocker(), provider, notifier)

	ident, err := registrar.EnsureIdentity(context.Background(), 7)
	if err != nil {
		t.Fatalf("EnsureIdentity() failed: %v", err)
	}

	if ident.ProviderSecret != "fresh-secret" {
		t.Errorf("expected recovered identity, got secret %q", ident.ProviderSecret)
	}
	if got := provider.registerCalls.Load(); got != 2 {
		t.Errorf("expected 2 registration attempts (original + retry), got %d", got)
	}
	if got := provider.deleteCalls.Load(); got != 1 {
		t.Errorf("expected 1 provider delete, got %d", got)
	}

	rows, _ := repo.ListAll(context.Background())
	if len(rows) != 1 {
		t.Errorf("expected exactly 1 local row after recovery, got %d", len(rows))
	}
	if notifier.repaired.Load() != 1 {
		t.Errorf("expected repair notification, got %d", notifier.repaired.Load())
	}
}

func TestEnsureIdentity_RecoveryRetriesOnlyOnce(t *testing.T) {
	repo := newMemRepo()
	provider := &mockProvider{
		registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
			return nil, &aggregator.APIError{
				StatusCode: http.StatusBadRequest,
				Code:       aggregator.CodeIdentityExists,
				Message:    "user already exists",
			}
		},
	}
	registrar := NewRegistrar(repo, newMemLocker(), provider, nil)

	_, err := registrar.EnsureIdentity(context.Background(), 7)
	if err == nil {
		t.Fatal("expected error when recovery keeps failing")
	}
	if got := apperr.CodeOf(err); got != apperr.CodeServiceUnavailable {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %s", got)
	}
	if got := provider.registerCalls.Load(); got != 2 {
		t.Errorf("expected exactly 2 registration attempts, got %d", got)
	}
}

func TestEnsureIdentity_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		provErr  error
		wantCode apperr.Code
	}{
		{
			name: "rate limited",
			provErr: &aggregator.APIError{
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: 30 * time.Second,
			},
			wantCode: apperr.CodeRateLimited,
		},
		{
			name: "provider auth failure",
			provErr: &aggregator.APIError{
				StatusCode: http.StatusUnauthorized,
				Message:    "bad signature",
			},
			wantCode: apperr.CodeServiceUnavailable,
		},
		{
			name:     "network failure",
			provErr:  errors.New("connection refused"),
			wantCode: apperr.CodeServiceUnavailable,
		},
		{
			name: "unknown provider error",
			provErr: &aggregator.APIError{
				StatusCode: http.StatusInternalServerError,
			},
			wantCode: apperr.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{
				registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
					return nil, tt.provErr
				},
			}
			registrar := NewRegistrar(newMemRepo(), newMemLocker(), provider, nil)

			_, err := registrar.EnsureIdentity(context.Background(), 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperr.CodeOf(err); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestEnsureIdentity_RateLimitCarriesRetryAfter(t *testing.T) {
	provider := &mockProvider{
		registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
			return nil, &aggregator.APIError{
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: 45 * time.Second,
			}
		},
	}
	registrar := NewRegistrar(newMemRepo(), newMemLocker(), provider, nil)

	_, err := registrar.EnsureIdentity(context.Background(), 1)

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected apperr.Error, got %v", err)
	}
	if ae.RetryAfter != 45*time.Second {
		t.Errorf("expected RetryAfter 45s, got %v", ae.RetryAfter)
	}
}

func TestRotateSecret(t *testing.T) {
	repo := newMemRepo()
	repo.Create(context.Background(), 1, "flint-1", "old-secret")

	provider := &mockProvider{
		registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
			return &aggregator.Identity{ProviderUserID: ref, ProviderSecret: "new-secret"}, nil
		},
	}
	registrar := NewRegistrar(repo, newMemLocker(), provider, nil)

	ident, err := registrar.RotateSecret(context.Background(), 1)
	if err != nil {
		t.Fatalf("RotateSecret() failed: %v", err)
	}

	if ident.ProviderSecret != "new-secret" {
		t.Errorf("expected rotated secret, got %q", ident.ProviderSecret)
	}
	if ident.RotatedAt == nil {
		t.Error("expected RotatedAt to be set")
	}
	if got := provider.deleteCalls.Load(); got != 1 {
		t.Errorf("expected old identity deleted once, got %d", got)
	}
}

func TestRotateSecret_NotRegistered(t *testing.T) {
	provider := &mockProvider{
		registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
			t.Fatal("provider must not be called for unregistered user")
			return nil, nil
		},
	}
	registrar := NewRegistrar(newMemRepo(), newMemLocker(), provider, nil)

	_, err := registrar.RotateSecret(context.Background(), 1)
	if got := apperr.CodeOf(err); got != apperr.CodeNotRegistered {
		t.Errorf("expected NOT_REGISTERED, got %s", got)
	}
}

func TestDisconnect_ToleratesProviderFailure(t *testing.T) {
	repo := newMemRepo()
	repo.Create(context.Background(), 1, "flint-1", "secret")

	provider := &mockProvider{
		registerFunc: func(ctx context.Context, ref string) (*aggregator.Identity, error) {
			return nil, nil
		},
		deleteFunc: func(ctx context.Context, providerUserID string) error {
			return errors.New("provider timeout")
		},
	}
	registrar := NewRegistrar(repo, newMemLocker(), provider, nil)

	if err := registrar.Disconnect(context.Background(), 1); err != nil {
		t.Fatalf("Disconnect() failed: %v", err)
	}

	if _, err := repo.GetByUserID(context.Background(), 1); !errors.Is(err, ErrIdentityNotFound) {
		t.Error("expected local row removed despite provider failure")
	}
}

type mockNotifier struct {
	repaired atomic.Int64
}

func (m *mockNotifier) IdentityRepaired(ctx context.Context, userID int64) {
	m.repaired.Add(1)
}
