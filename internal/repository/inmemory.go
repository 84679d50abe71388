package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/google/uuid"
)

// Репозитории в памяти. Повторяют семантику PostgreSQL-реализаций,
// включая защиту от дубликатов и оптимистическую проверку версии,
// и используются в тестах и локальной разработке без базы данных.

// InMemorySubscriptionRepository реализация SubscriptionRepository в памяти.
type InMemorySubscriptionRepository struct {
	mu    sync.RWMutex
	subs  map[uuid.UUID]domain.Subscription
	tiers TierRepository // Для вычисления MRR в GetStats; может быть nil
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти.
func NewInMemorySubscriptionRepository(tiers TierRepository) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs:  make(map[uuid.UUID]domain.Subscription),
		tiers: tiers,
	}
}

// Create сохраняет новую подписку, отклоняя дубликаты незакрытых записей.
func (r *InMemorySubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.subs {
		if existing.SubscriberID == sub.SubscriberID &&
			existing.CreatorID == sub.CreatorID &&
			existing.TierID == sub.TierID &&
			existing.Status.IsOpen() {
			return ErrDuplicate
		}
	}

	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	r.subs[sub.ID] = *sub
	return nil
}

// GetByID возвращает подписку по ID.
func (r *InMemorySubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// GetBySubscriberID возвращает все подписки пользователя, новые в начале.
func (r *InMemorySubscriptionRepository) GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := []domain.Subscription{}
	for _, sub := range r.subs {
		if sub.SubscriberID == subscriberID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

// GetByExternalID возвращает подписку по ID ресурса в процессоре.
func (r *InMemorySubscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.ExternalSubscriptionID != "" && sub.ExternalSubscriptionID == externalID {
			found := sub
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// FindOpenByTriple ищет незакрытую подписку для тройки.
func (r *InMemorySubscriptionRepository) FindOpenByTriple(ctx context.Context, subscriberID, creatorID, tierID uuid.UUID) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.SubscriberID == subscriberID && sub.CreatorID == creatorID &&
			sub.TierID == tierID && sub.Status.IsOpen() {
			found := sub
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// Update обновляет подписку с оптимистической проверкой версии.
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.updateLocked(sub)
}

// updateLocked применяет обновление; вызывающий держит блокировку.
func (r *InMemorySubscriptionRepository) updateLocked(sub *domain.Subscription) error {
	existing, ok := r.subs[sub.ID]
	if !ok {
		return ErrNotFound
	}
	if !existing.UpdatedAt.Equal(sub.UpdatedAt) {
		return ErrStaleData
	}

	sub.UpdatedAt = time.Now()
	r.subs[sub.ID] = *sub
	return nil
}

// ListOpenProcessorBacked возвращает кандидатов на сверку.
func (r *InMemorySubscriptionRepository) ListOpenProcessorBacked(ctx context.Context) ([]domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := []domain.Subscription{}
	for _, sub := range r.subs {
		if sub.Status.IsOpen() && sub.Kind == domain.SubscriptionKindProcessorBacked {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

// GetStats возвращает сводку по подпискам.
func (r *InMemorySubscriptionRepository) GetStats(ctx context.Context) (*domain.SubscriptionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.SubscriptionStats{}
	for _, sub := range r.subs {
		stats.Total++
		switch sub.Status {
		case domain.SubscriptionStatusActive:
			stats.Active++
			if r.tiers != nil {
				tier, err := r.tiers.GetByID(ctx, sub.TierID)
				if err == nil && tier.BillingPeriod == domain.BillingPeriodMonthly {
					stats.MonthlyRecurringRevenue += sub.TotalAmount
				}
			}
		case domain.SubscriptionStatusCancelled:
			stats.Cancelled++
		}
	}
	return &stats, nil
}

// InMemoryTierRepository реализация TierRepository в памяти.
type InMemoryTierRepository struct {
	mu    sync.RWMutex
	tiers map[uuid.UUID]domain.Tier
}

// NewInMemoryTierRepository создает репозиторий уровней в памяти.
func NewInMemoryTierRepository() *InMemoryTierRepository {
	return &InMemoryTierRepository{tiers: make(map[uuid.UUID]domain.Tier)}
}

// Put добавляет или заменяет уровень (для тестов и начальных данных).
func (r *InMemoryTierRepository) Put(tier domain.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[tier.ID] = tier
}

// GetByID возвращает уровень по ID.
func (r *InMemoryTierRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tier, ok := r.tiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tier, nil
}

// InMemoryWebhookEventRepository журнал вебхук-событий в памяти.
// Обновление подписки выполняется под тем же замком, что и запись события,
// воспроизводя транзакционность PostgreSQL-реализации.
type InMemoryWebhookEventRepository struct {
	mu     sync.Mutex
	events map[string]domain.WebhookEventRecord
	subs   *InMemorySubscriptionRepository
}

// NewInMemoryWebhookEventRepository создает журнал вебхук-событий в памяти.
func NewInMemoryWebhookEventRepository(subs *InMemorySubscriptionRepository) *InMemoryWebhookEventRepository {
	return &InMemoryWebhookEventRepository{
		events: make(map[string]domain.WebhookEventRecord),
		subs:   subs,
	}
}

// Seen сообщает, было ли событие уже обработано.
func (r *InMemoryWebhookEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.events[eventID]
	return ok, nil
}

// Events возвращает количество учтенных событий (для тестов).
func (r *InMemoryWebhookEventRepository) Events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// RecordProcessed фиксирует событие и обновление подписки атомарно.
func (r *InMemoryWebhookEventRepository) RecordProcessed(ctx context.Context, event domain.WebhookEventRecord, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.EventID]; ok {
		return ErrDuplicate
	}

	if sub != nil {
		r.subs.mu.Lock()
		err := r.subs.updateLocked(sub)
		r.subs.mu.Unlock()
		if err != nil {
			return err
		}
	}

	r.events[event.EventID] = event
	return nil
}

// InMemorySyncAuditRepository журнал прогонов сверки в памяти.
type InMemorySyncAuditRepository struct {
	mu      sync.Mutex
	records []domain.SyncAuditRecord
}

// NewInMemorySyncAuditRepository создает журнал сверки в памяти.
func NewInMemorySyncAuditRepository() *InMemorySyncAuditRepository {
	return &InMemorySyncAuditRepository{}
}

// Create записывает итог прогона сверки.
func (r *InMemorySyncAuditRepository) Create(ctx context.Context, record *domain.SyncAuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.RunAt.IsZero() {
		record.RunAt = time.Now()
	}
	r.records = append(r.records, *record)
	return nil
}

// List возвращает последние прогоны, новые в начале.
func (r *InMemorySyncAuditRepository) List(ctx context.Context, limit int) ([]domain.SyncAuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]domain.SyncAuditRecord, len(r.records))
	copy(records, r.records)
	sort.Slice(records, func(i, j int) bool {
		return records[i].RunAt.After(records[j].RunAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
