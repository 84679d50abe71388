package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorlane/billing-service/internal/domain"
)

func TestReconciliationRun_AllInSync(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusActive, "sub_abc")

	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	env.gateway.getFn = func(ctx context.Context, externalID string) (*GatewaySubscription, error) {
		return &GatewaySubscription{
			ExternalID:         externalID,
			Status:             "active",
			CurrentPeriodStart: stored.CurrentPeriodStart,
			CurrentPeriodEnd:   stored.CurrentPeriodEnd,
		}, nil
	}

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, record.CheckedCount)
	assert.Equal(t, 0, record.SyncedCount, "nothing had to be corrected")
	assert.Empty(t, record.Mismatches)

	audits, err := svc.ListAudits(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, record.ID, audits[0].ID)
}

func TestReconciliationRun_CorrectsStatusDrift(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusActive, "sub_abc")

	env.gateway.getFn = func(ctx context.Context, externalID string) (*GatewaySubscription, error) {
		return &GatewaySubscription{ExternalID: externalID, Status: "canceled"}, nil
	}

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, record.Mismatches, 1)
	assert.Equal(t, domain.MismatchIssueStatusDrift, record.Mismatches[0].Issue)
	assert.Equal(t, "corrected_to_cancelled", record.Mismatches[0].ResolutionAction)
	assert.Equal(t, 1, record.SyncedCount)

	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)
}

func TestReconciliationRun_ResourceMissingClosesSubscription(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusActive, "sub_abc")

	env.gateway.getFn = func(ctx context.Context, externalID string) (*GatewaySubscription, error) {
		return nil, domain.NewGatewayError("get_subscription", "resource_missing", "no such subscription", 404, domain.ErrResourceMissing, nil)
	}

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, record.Mismatches, 1)
	assert.Equal(t, domain.MismatchIssueResourceMissing, record.Mismatches[0].Issue)
	assert.Equal(t, domain.MismatchResolutionCancelled, record.Mismatches[0].ResolutionAction)
	assert.Equal(t, 1, record.SyncedCount)

	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, stored.Status)
}

func TestReconciliationRun_MissingExternalIDWithinGrace(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusPending, "")

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, record.Mismatches, 1)
	assert.Equal(t, domain.MismatchIssueMissingExternal, record.Mismatches[0].Issue)
	assert.Equal(t, domain.MismatchResolutionNone, record.Mismatches[0].ResolutionAction)
	assert.Equal(t, 0, record.SyncedCount)
	assert.Zero(t, env.gateway.getCalls, "no external id, nothing to fetch")

	// Свежая запись еще может быть в процессе создания, ее не трогаем
	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPending, stored.Status)
}

func TestReconciliationRun_AbandonedPendingCancelledAfterGrace(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusPending, "")

	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	stored.CreatedAt = stored.CreatedAt.Add(-2 * time.Hour)
	require.NoError(t, env.subs.Update(context.Background(), stored))

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, record.Mismatches, 1)
	assert.Equal(t, domain.MismatchIssueMissingExternal, record.Mismatches[0].Issue)
	assert.Equal(t, domain.MismatchResolutionCancelled, record.Mismatches[0].ResolutionAction)
	assert.Equal(t, 1, record.SyncedCount)

	closed, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, closed.Status)
	assert.NotNil(t, closed.CancelledAt)
}

func TestReconciliationRun_RetrieveFailureLeavesRecordUntouched(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusActive, "sub_abc")

	env.gateway.getFn = func(ctx context.Context, externalID string) (*GatewaySubscription, error) {
		return nil, domain.NewGatewayError("get_subscription", "", "gateway down", 503, domain.ErrGatewayTransient, nil)
	}

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, record.Mismatches, 1)
	assert.Equal(t, domain.MismatchIssueRetrieveFailed, record.Mismatches[0].Issue)
	assert.Equal(t, 0, record.SyncedCount)

	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, stored.Status)
}

func TestReconciliationRun_PeriodOnlyUpdateIsNotAMismatch(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusActive, "sub_abc")

	// Процессор перешел на следующий расчетный период
	newStart := time.Now().UTC().AddDate(0, 1, 0)
	env.gateway.getFn = func(ctx context.Context, externalID string) (*GatewaySubscription, error) {
		return &GatewaySubscription{
			ExternalID:         externalID,
			Status:             "active",
			CurrentPeriodStart: newStart,
			CurrentPeriodEnd:   newStart.AddDate(0, 1, 0),
		}, nil
	}

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, record.SyncedCount)
	assert.Empty(t, record.Mismatches)

	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentPeriodStart.Equal(newStart))
}

func TestReconciliationRun_SkipsSyntheticSubscriptions(t *testing.T) {
	env := newTestEnv()
	sub := seedProcessorBacked(t, env, domain.SubscriptionStatusActive, "sub_abc")
	stored, err := env.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	stored.Kind = domain.SubscriptionKindSynthetic
	require.NoError(t, env.subs.Update(context.Background(), stored))

	svc := env.reconciliationService()
	record, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, record.CheckedCount)
	assert.Zero(t, env.gateway.getCalls)
}
