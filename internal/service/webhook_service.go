package service

import (
	"context"
	"errors"
	"time"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/kafka"
	"github.com/creatorlane/billing-service/internal/metrics"
	"github.com/creatorlane/billing-service/internal/repository"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// WebhookService интерфейс обработки событий платежного процессора
type WebhookService interface {
	ProcessEvent(ctx context.Context, event *domain.ProcessorEvent) error
}

// SubscriptionCacheInvalidator сбрасывает кешированные чтения подписки,
// измененной в обход репозитория подписок
type SubscriptionCacheInvalidator interface {
	InvalidateFor(ctx context.Context, sub *domain.Subscription)
}

type webhookService struct {
	subscriptionRepo repository.SubscriptionRepository
	eventRepo        repository.WebhookEventRepository
	invalidator      SubscriptionCacheInvalidator // nil, если кеш не используется
	producer         kafka.SubscriptionProducer
	metrics          metrics.BillingMetrics
	log              *logger.Logger
}

// NewWebhookService создает сервис обработки вебхуков
func NewWebhookService(
	subscriptionRepo repository.SubscriptionRepository,
	eventRepo repository.WebhookEventRepository,
	invalidator SubscriptionCacheInvalidator,
	producer kafka.SubscriptionProducer,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) WebhookService {
	return &webhookService{
		subscriptionRepo: subscriptionRepo,
		eventRepo:        eventRepo,
		invalidator:      invalidator,
		producer:         producer,
		metrics:          billingMetrics,
		log:              log,
	}
}

// ProcessEvent применяет событие процессора к локальному леджеру.
// Обработка идемпотентна: повторная доставка события с тем же ID
// не производит эффектов. Запись о событии и изменение подписки
// фиксируются в одной транзакции.
func (s *webhookService) ProcessEvent(ctx context.Context, event *domain.ProcessorEvent) error {
	eventType := string(event.Type)
	s.log.Debugw("Processing webhook event", "eventID", event.EventID, "type", event.Type)

	seen, err := s.eventRepo.Seen(ctx, event.EventID)
	if err != nil {
		s.log.Errorw("Failed to check event dedup", "error", err, "eventID", event.EventID)
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}
	if seen {
		s.log.Debugw("Duplicate webhook event, skipping", "eventID", event.EventID)
		s.metrics.IncWebhookEvent(eventType, "duplicate")
		return nil
	}

	record := domain.WebhookEventRecord{
		EventID:     event.EventID,
		EventType:   event.Type,
		ReceivedAt:  time.Now().UTC(),
		ProcessedAt: time.Now().UTC(),
	}

	sub, err := s.subscriptionRepo.GetByExternalID(ctx, event.ExternalSubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Событие для неизвестной подписки: подтверждаем его, чтобы
			// процессор не ретраил, и оставляем след в журнале
			s.log.Warnw("Webhook event for unknown subscription",
				"eventID", event.EventID, "externalID", event.ExternalSubscriptionID)
			s.metrics.IncWebhookEvent(eventType, "orphaned")
			return s.recordOnly(ctx, record)
		}
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}

	status, ok := MapProcessorStatus(event.ProcessorStatus)
	if !ok {
		s.log.Warnw("Unknown processor status in event",
			"eventID", event.EventID, "processorStatus", event.ProcessorStatus)
		s.metrics.IncWebhookEvent(eventType, "ignored")
		return s.recordOnly(ctx, record)
	}

	// Защита от устаревших событий: событие старше последнего изменения
	// записи отбрасывается. Исключение: первый переход pending -> active
	// принимается всегда, иначе подписка, созданная и активированная
	// в одну секунду, застревает в pending.
	initialActivation := sub.Status == domain.SubscriptionStatusPending && status == domain.SubscriptionStatusActive
	if !initialActivation && event.OccurredAt.Before(sub.UpdatedAt) {
		s.log.Warnw("Stale webhook event rejected",
			"eventID", event.EventID, "occurredAt", event.OccurredAt, "recordUpdatedAt", sub.UpdatedAt)
		s.metrics.IncWebhookEvent(eventType, "stale")
		return s.recordOnly(ctx, record)
	}

	prevStatus := sub.Status
	changed := applyRemoteState(sub, status, event.CurrentPeriodStart, event.CurrentPeriodEnd, event.CancelledAt)
	if !changed {
		s.metrics.IncWebhookEvent(eventType, "noop")
		return s.recordOnly(ctx, record)
	}

	if err := s.eventRepo.RecordProcessed(ctx, record, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Конкурентная доставка того же события, считаем обработанным
			s.metrics.IncWebhookEvent(eventType, "duplicate")
			return nil
		}
		s.log.Errorw("Failed to record webhook event", "error", err, "eventID", event.EventID)
		s.metrics.IncWebhookEvent(eventType, "error")
		return err
	}

	// Запись менялась мимо репозитория подписок, кеш чтения устарел
	if s.invalidator != nil {
		s.invalidator.InvalidateFor(ctx, sub)
	}

	s.metrics.IncWebhookEvent(eventType, "applied")
	if sub.Status != prevStatus {
		s.metrics.IncSubscriptionStatusChange(string(sub.Status))
		s.publishTransition(ctx, sub, prevStatus)
	}

	s.log.Infow("Applied webhook event",
		"eventID", event.EventID, "subscriptionID", sub.ID, "status", sub.Status)
	return nil
}

// recordOnly сохраняет запись о событии без изменения подписки
func (s *webhookService) recordOnly(ctx context.Context, record domain.WebhookEventRecord) error {
	if err := s.eventRepo.RecordProcessed(ctx, record, nil); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return err
	}
	return nil
}

// publishTransition публикует событие жизненного цикла по новому статусу
func (s *webhookService) publishTransition(ctx context.Context, sub *domain.Subscription, prev domain.SubscriptionStatus) {
	var err error
	switch sub.Status {
	case domain.SubscriptionStatusActive:
		err = s.producer.PublishSubscriptionActivated(ctx, sub)
	case domain.SubscriptionStatusCancelled:
		err = s.producer.PublishSubscriptionCancelled(ctx, sub)
	case domain.SubscriptionStatusPastDue:
		err = s.producer.PublishSubscriptionPastDue(ctx, sub)
	default:
		return
	}
	if err != nil {
		s.log.Warnw("Failed to publish lifecycle event",
			"error", err, "subscriptionID", sub.ID, "from", prev, "to", sub.Status)
	}
}
