package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	subscriptionKeyPrefix            = "subscription:"
	subscriberSubscriptionsKeyPrefix = "subscriber_subscriptions:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование чтений подписок через Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheSubscription кеширует подписку в Redis
func (r *RedisCacheRepository) CacheSubscription(ctx context.Context, sub *domain.Subscription) error {
	key := subscriptionKeyPrefix + sub.ID.String()

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache subscription in Redis", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	return nil
}

// GetCachedSubscription получает подписку из кеша; nil без ошибки при промахе
func (r *RedisCacheRepository) GetCachedSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	key := subscriptionKeyPrefix + id.String()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.log.Errorw("Error getting subscription from Redis", "error", err, "subscriptionID", id)
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	return &sub, nil
}

// InvalidateSubscription удаляет подписку из кеша
func (r *RedisCacheRepository) InvalidateSubscription(ctx context.Context, id uuid.UUID) error {
	return r.client.Del(ctx, subscriptionKeyPrefix+id.String()).Err()
}

// CacheSubscriberSubscriptions кеширует список подписок пользователя
func (r *RedisCacheRepository) CacheSubscriberSubscriptions(ctx context.Context, subscriberID uuid.UUID, subs []domain.Subscription) error {
	key := subscriberSubscriptionsKeyPrefix + subscriberID.String()

	data, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriptions: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache subscriptions: %w", err)
	}

	return nil
}

// GetCachedSubscriberSubscriptions получает список подписок пользователя из кеша
func (r *RedisCacheRepository) GetCachedSubscriberSubscriptions(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	key := subscriberSubscriptionsKeyPrefix + subscriberID.String()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscriptions from cache: %w", err)
	}

	var subs []domain.Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscriptions: %w", err)
	}

	return subs, nil
}

// InvalidateSubscriberSubscriptions удаляет список подписок пользователя из кеша
func (r *RedisCacheRepository) InvalidateSubscriberSubscriptions(ctx context.Context, subscriberID uuid.UUID) error {
	return r.client.Del(ctx, subscriberSubscriptionsKeyPrefix+subscriberID.String()).Err()
}
