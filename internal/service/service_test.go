package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/kafka"
	"github.com/creatorlane/billing-service/internal/metrics"
	"github.com/creatorlane/billing-service/internal/repository"
	"github.com/creatorlane/billing-service/pkg/logger"
	"github.com/creatorlane/billing-service/pkg/retry"
)

// fakeGateway управляемая подмена платежного процессора для тестов
type fakeGateway struct {
	createFn     func(ctx context.Context, customerID, priceID string, metadata map[string]string) (*GatewaySubscription, error)
	getFn        func(ctx context.Context, externalID string) (*GatewaySubscription, error)
	cancelFn     func(ctx context.Context, externalID string) (*GatewaySubscription, error)
	reactivateFn func(ctx context.Context, externalID string) (*GatewaySubscription, error)

	createCalls     int
	getCalls        int
	cancelCalls     int
	reactivateCalls int
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*GatewaySubscription, error) {
	g.createCalls++
	if g.createFn == nil {
		return &GatewaySubscription{ExternalID: "sub_test", Status: "incomplete"}, nil
	}
	return g.createFn(ctx, customerID, priceID, metadata)
}

func (g *fakeGateway) GetSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error) {
	g.getCalls++
	if g.getFn == nil {
		return &GatewaySubscription{ExternalID: externalID, Status: "active"}, nil
	}
	return g.getFn(ctx, externalID)
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error) {
	g.cancelCalls++
	if g.cancelFn == nil {
		now := time.Now().UTC()
		return &GatewaySubscription{ExternalID: externalID, Status: "active", CancelAtPeriodEnd: true, CancelledAt: &now}, nil
	}
	return g.cancelFn(ctx, externalID)
}

func (g *fakeGateway) ReactivateSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error) {
	g.reactivateCalls++
	if g.reactivateFn == nil {
		return &GatewaySubscription{ExternalID: externalID, Status: "active"}, nil
	}
	return g.reactivateFn(ctx, externalID)
}

// captureMetrics запоминает зафиксированные изменения статусов
type captureMetrics struct {
	metrics.BillingMetrics
	statusChanges []string
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{BillingMetrics: metrics.NewNoOpBillingMetrics()}
}

func (m *captureMetrics) IncSubscriptionStatusChange(status string) {
	m.statusChanges = append(m.statusChanges, status)
}

// fakeInvalidator считает сбросы кеша подписок
type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateFor(ctx context.Context, sub *domain.Subscription) {
	f.calls++
}

// testEnv общая обвязка сервисных тестов
type testEnv struct {
	subs    *repository.InMemorySubscriptionRepository
	tiers   *repository.InMemoryTierRepository
	events  *repository.InMemoryWebhookEventRepository
	audits  *repository.InMemorySyncAuditRepository
	gateway *fakeGateway
	metrics metrics.BillingMetrics
	log     *logger.Logger
}

func newTestEnv() *testEnv {
	tiers := repository.NewInMemoryTierRepository()
	subs := repository.NewInMemorySubscriptionRepository(tiers)
	return &testEnv{
		subs:    subs,
		tiers:   tiers,
		events:  repository.NewInMemoryWebhookEventRepository(subs),
		audits:  repository.NewInMemorySyncAuditRepository(),
		gateway: &fakeGateway{},
		metrics: metrics.NewNoOpBillingMetrics(),
		log:     logger.New(logger.ERROR),
	}
}

func (e *testEnv) subscriptionService() *subscriptionService {
	svc := NewSubscriptionService(
		e.subs, e.tiers, e.gateway, kafka.NewNoOpProducer(),
		e.metrics, 0.30, e.log,
	).(*subscriptionService)
	// Короткие задержки, чтобы тесты повторов не тормозили
	svc.retryPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return svc
}

func (e *testEnv) webhookService() WebhookService {
	return e.webhookServiceWith(nil)
}

func (e *testEnv) webhookServiceWith(invalidator SubscriptionCacheInvalidator) WebhookService {
	return NewWebhookService(e.subs, e.events, invalidator, kafka.NewNoOpProducer(), e.metrics, e.log)
}

func (e *testEnv) reconciliationService() ReconciliationService {
	return NewReconciliationService(e.subs, e.audits, e.gateway, e.metrics, e.log)
}

// addTier регистрирует тариф и возвращает его
func (e *testEnv) addTier(price int64) domain.Tier {
	tier := domain.Tier{
		ID:              uuid.New(),
		CreatorID:       uuid.New(),
		Price:           price,
		BillingPeriod:   domain.BillingPeriodMonthly,
		ExternalPriceID: "price_test",
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	e.tiers.Put(tier)
	return tier
}
