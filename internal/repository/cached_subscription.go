package repository

import (
	"context"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
	"github.com/google/uuid"
)

// CachedSubscriptionRepository оборачивает основной репозиторий кешем в Redis.
// Промах кеша или ошибка Redis никогда не ломают запрос, идем в базу.
type CachedSubscriptionRepository struct {
	inner SubscriptionRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает кеширующую обертку над репозиторием подписок
func NewCachedSubscriptionRepository(inner SubscriptionRepository, cache *RedisCacheRepository, log *logger.Logger) *CachedSubscriptionRepository {
	return &CachedSubscriptionRepository{
		inner: inner,
		cache: cache,
		log:   log,
	}
}

func (r *CachedSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	if err := r.inner.Create(ctx, sub); err != nil {
		return err
	}

	if err := r.cache.InvalidateSubscriberSubscriptions(ctx, sub.SubscriberID); err != nil {
		r.log.Warnw("Failed to invalidate subscriber cache", "error", err, "subscriberID", sub.SubscriberID)
	}
	return nil
}

func (r *CachedSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	cached, err := r.cache.GetCachedSubscription(ctx, id)
	if err == nil && cached != nil {
		return cached, nil
	}

	sub, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if cacheErr := r.cache.CacheSubscription(ctx, sub); cacheErr != nil {
		r.log.Warnw("Failed to cache subscription", "error", cacheErr, "subscriptionID", id)
	}
	return sub, nil
}

func (r *CachedSubscriptionRepository) GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	cached, err := r.cache.GetCachedSubscriberSubscriptions(ctx, subscriberID)
	if err == nil && cached != nil {
		return cached, nil
	}

	subs, err := r.inner.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	if cacheErr := r.cache.CacheSubscriberSubscriptions(ctx, subscriberID, subs); cacheErr != nil {
		r.log.Warnw("Failed to cache subscriber subscriptions", "error", cacheErr, "subscriberID", subscriberID)
	}
	return subs, nil
}

// GetByExternalID не кешируется, вызывается из обработки вебхуков,
// где нужны только свежие данные из базы.
func (r *CachedSubscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	return r.inner.GetByExternalID(ctx, externalID)
}

// FindOpenByTriple не кешируется, используется для проверки дублей при создании
func (r *CachedSubscriptionRepository) FindOpenByTriple(ctx context.Context, subscriberID, creatorID, tierID uuid.UUID) (*domain.Subscription, error) {
	return r.inner.FindOpenByTriple(ctx, subscriberID, creatorID, tierID)
}

func (r *CachedSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	if err := r.inner.Update(ctx, sub); err != nil {
		return err
	}

	r.InvalidateFor(ctx, sub)
	return nil
}

// InvalidateFor сбрасывает кешированные чтения подписки. Нужен для записей,
// обновленных в обход репозитория: вебхуки меняют подписку в одной
// транзакции с журналом событий.
func (r *CachedSubscriptionRepository) InvalidateFor(ctx context.Context, sub *domain.Subscription) {
	if err := r.cache.InvalidateSubscription(ctx, sub.ID); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "subscriptionID", sub.ID)
	}
	if err := r.cache.InvalidateSubscriberSubscriptions(ctx, sub.SubscriberID); err != nil {
		r.log.Warnw("Failed to invalidate subscriber cache", "error", err, "subscriberID", sub.SubscriberID)
	}
}

func (r *CachedSubscriptionRepository) ListOpenProcessorBacked(ctx context.Context) ([]domain.Subscription, error) {
	return r.inner.ListOpenProcessorBacked(ctx)
}

func (r *CachedSubscriptionRepository) GetStats(ctx context.Context) (*domain.SubscriptionStats, error) {
	return r.inner.GetStats(ctx)
}
