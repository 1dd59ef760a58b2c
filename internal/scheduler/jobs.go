package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"flint/internal/domain/connection"
	"flint/internal/domain/identity"
	"flint/internal/domain/notification"
	"flint/internal/domain/recurring"
	"flint/internal/domain/transaction"
	"flint/internal/infrastructure/cache"
	"flint/internal/shared/apperr"
)

// RefreshJob reconciles one user's brokerage connections with the provider
// and pushes health notifications afterwards.
type RefreshJob struct {
	userID        int64
	sync          *connection.SyncService
	connections   connection.Repository
	transactions  *transaction.Service
	notifications *notification.Service
	seen          cache.Store
	staleAfter    time.Duration
}

func NewRefreshJob(userID int64, sync *connection.SyncService, connections connection.Repository, transactions *transaction.Service, notifications *notification.Service, seen cache.Store, staleAfter time.Duration) *RefreshJob {
	return &RefreshJob{
		userID:        userID,
		sync:          sync,
		connections:   connections,
		transactions:  transactions,
		notifications: notifications,
		seen:          seen,
		staleAfter:    staleAfter,
	}
}

// Execute syncs the user's connections, then classifies each local row and
// notifies about disabled or stale ones. Users without a provider
// registration are skipped quietly.
func (j *RefreshJob) Execute(ctx context.Context) error {
	result, err := j.sync.SyncAll(ctx, j.userID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotRegistered {
			log.Printf("User %d: No provider registration, skipping refresh", j.userID)
			return nil
		}
		return fmt.Errorf("connection sync failed: %w", err)
	}

	if result.Created > 0 {
		j.notify(func() error { return j.notifications.SendSyncComplete(ctx, j.userID) })
	}

	conns, err := j.connections.ListByUserID(ctx, j.userID)
	if err != nil {
		return fmt.Errorf("failed to list connections for health check: %w", err)
	}

	now := time.Now()
	for _, conn := range conns {
		switch conn.HealthAt(now, j.staleAfter) {
		case connection.HealthDisabled:
			institution := conn.InstitutionName
			j.notify(func() error { return j.notifications.SendConnectionDisabled(ctx, j.userID, institution) })
		case connection.HealthDisconnected:
			institution := conn.InstitutionName
			j.notify(func() error { return j.notifications.SendReconnectionNeeded(ctx, j.userID, institution) })
		}
	}

	j.notifyNewRecurring(ctx)

	return nil
}

// notifyNewRecurring scans the user's transaction history for recurring
// payments and alerts once per merchant. Already-notified merchants are
// tracked in the shared cache so repeated refreshes stay quiet.
func (j *RefreshJob) notifyNewRecurring(ctx context.Context) {
	if j.notifications == nil || j.transactions == nil || j.seen == nil {
		return
	}

	result, err := j.transactions.ListForUser(ctx, j.userID)
	if err != nil {
		log.Printf("User %d: Failed to list transactions for recurring scan: %v", j.userID, err)
		return
	}

	for _, sub := range recurring.Detect(result.Transactions, time.Now()) {
		key := "recurring:notified:" + strconv.FormatInt(j.userID, 10) + ":" + sub.Merchant
		if _, err := j.seen.Get(ctx, key); err == nil {
			continue
		}
		merchant := sub.Merchant
		j.notify(func() error { return j.notifications.SendNewRecurringPayment(ctx, j.userID, merchant) })
		if err := j.seen.Set(ctx, key, "1", 0); err != nil {
			log.Printf("User %d: Failed to record recurring payment notice: %v", j.userID, err)
		}
	}
}

func (j *RefreshJob) notify(send func() error) {
	if j.notifications == nil {
		return
	}
	if err := send(); err != nil {
		log.Printf("User %d: Failed to send notification: %v", j.userID, err)
	}
}

func (j *RefreshJob) UserID() string {
	return strconv.FormatInt(j.userID, 10)
}

func (j *RefreshJob) Description() string {
	return fmt.Sprintf("Connection refresh for user %d", j.userID)
}

// SweepJob removes orphaned provider registrations across all users.
type SweepJob struct {
	cleanup *identity.CleanupService
}

func NewSweepJob(cleanup *identity.CleanupService) *SweepJob {
	return &SweepJob{cleanup: cleanup}
}

func (j *SweepJob) Execute(ctx context.Context) error {
	result, err := j.cleanup.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("orphan sweep failed: %w", err)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("orphan sweep completed with %d errors (checked %d, removed %d)",
			len(result.Errors), result.Checked, result.Removed)
	}

	log.Printf("Orphan sweep completed: checked %d, removed %d", result.Checked, result.Removed)
	return nil
}

func (j *SweepJob) UserID() string {
	return "system"
}

func (j *SweepJob) Description() string {
	return "Orphaned registration sweep"
}
