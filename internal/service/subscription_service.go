package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/creatorlane/billing-service/internal/billing"
	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/kafka"
	"github.com/creatorlane/billing-service/internal/metrics"
	"github.com/creatorlane/billing-service/internal/repository"
	"github.com/creatorlane/billing-service/pkg/logger"
	"github.com/creatorlane/billing-service/pkg/retry"
)

// SubscriptionService интерфейс сервиса управления жизненным циклом подписок
type SubscriptionService interface {
	Create(ctx context.Context, subscriberID uuid.UUID, req domain.SubscriptionRequest) (*domain.Subscription, error)
	GetByID(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error)
	GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error)
	Cancel(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error)
	Reactivate(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error)
}

type subscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	tierRepo         repository.TierRepository
	gateway          SubscriptionGateway
	producer         kafka.SubscriptionProducer
	metrics          metrics.BillingMetrics
	feeRate          float64
	retryPolicy      retry.Policy
	log              *logger.Logger
}

// NewSubscriptionService создает сервис управления подписками
func NewSubscriptionService(
	subscriptionRepo repository.SubscriptionRepository,
	tierRepo repository.TierRepository,
	gateway SubscriptionGateway,
	producer kafka.SubscriptionProducer,
	billingMetrics metrics.BillingMetrics,
	feeRate float64,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		tierRepo:         tierRepo,
		gateway:          gateway,
		producer:         producer,
		metrics:          billingMetrics,
		feeRate:          feeRate,
		retryPolicy:      retry.DefaultPolicy,
		log:              log,
	}
}

// isTransient повтор имеет смысл только для временных ошибок процессора
func isTransient(err error) bool {
	return errors.Is(err, domain.ErrGatewayTransient)
}

// Create создает подписку: проверяет тариф, отвергает дубликаты,
// рассчитывает распределение суммы и заводит подписку у процессора.
// Локальная запись создается до обращения к процессору, чтобы сверка
// могла подобрать ее при любом исходе внешнего вызова.
func (s *subscriptionService) Create(ctx context.Context, subscriberID uuid.UUID, req domain.SubscriptionRequest) (*domain.Subscription, error) {
	s.log.Debugw("Creating subscription", "subscriberID", subscriberID, "creatorID", req.CreatorID, "tierID", req.TierID)

	tier, err := s.tierRepo.GetByID(ctx, req.TierID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Tier not found", "tierID", req.TierID)
			return nil, domain.ErrInvalidTier
		}
		s.log.Errorw("Error fetching tier", "error", err, "tierID", req.TierID)
		return nil, err
	}
	if !tier.IsActive || tier.CreatorID != req.CreatorID {
		s.log.Warnw("Tier is inactive or belongs to another creator", "tierID", req.TierID)
		return nil, domain.ErrInvalidTier
	}

	// Проверяем, нет ли уже действующей подписки на эту тройку
	existing, err := s.subscriptionRepo.FindOpenByTriple(ctx, subscriberID, req.CreatorID, req.TierID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Errorw("Error checking for duplicate subscription", "error", err)
		return nil, err
	}
	if existing != nil {
		// Брошенная запись без внешнего идентификатора (создание у процессора
		// так и не состоялось) не должна навсегда блокировать тройку:
		// закрываем ее и оформляем подписку заново
		if existing.Kind == domain.SubscriptionKindProcessorBacked &&
			existing.Status == domain.SubscriptionStatusPending &&
			existing.ExternalSubscriptionID == "" {
			now := time.Now().UTC()
			existing.Status = domain.SubscriptionStatusCancelled
			existing.CancelledAt = &now
			if updErr := s.subscriptionRepo.Update(ctx, existing); updErr != nil {
				// Записью уже занят конкурирующий запрос
				s.log.Warnw("Failed to close abandoned pending subscription", "error", updErr, "subscriptionID", existing.ID)
				return nil, domain.ErrDuplicateActiveSubscription
			}
			s.metrics.IncSubscriptionStatusChange(string(domain.SubscriptionStatusCancelled))
			s.log.Infow("Closed abandoned pending subscription", "subscriptionID", existing.ID)
		} else {
			s.log.Warnw("Duplicate active subscription", "subscriberID", subscriberID, "tierID", req.TierID)
			return nil, domain.ErrDuplicateActiveSubscription
		}
	}

	platformFee, creatorEarnings := billing.Split(tier.Price, s.feeRate)

	now := time.Now().UTC()
	sub := &domain.Subscription{
		ID:                 uuid.New(),
		SubscriberID:       subscriberID,
		CreatorID:          req.CreatorID,
		TierID:             req.TierID,
		Kind:               domain.SubscriptionKindProcessorBacked,
		Status:             domain.SubscriptionStatusPending,
		TotalAmount:        tier.Price,
		PlatformFee:        platformFee,
		CreatorEarnings:    creatorEarnings,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   tier.PeriodEnd(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Synthetic {
		sub.Kind = domain.SubscriptionKindSynthetic
		sub.Status = domain.SubscriptionStatusActive
	}

	// Нарушение распределения суммы означает порчу финансовых данных,
	// продолжать работу нельзя
	if !sub.SplitConsistent() {
		s.log.Errorw("Financial split invariant violated",
			"total", sub.TotalAmount, "fee", sub.PlatformFee, "earnings", sub.CreatorEarnings)
		panic(fmt.Sprintf("financial split invariant violated: %d + %d != %d",
			sub.PlatformFee, sub.CreatorEarnings, sub.TotalAmount))
	}

	if err := s.subscriptionRepo.Create(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrDuplicateActiveSubscription
		}
		s.log.Errorw("Failed to create subscription record", "error", err)
		return nil, err
	}
	s.metrics.IncSubscriptionCreated(string(sub.Kind))

	// Синтетические подписки не взаимодействуют с процессором
	if sub.Kind == domain.SubscriptionKindSynthetic {
		s.log.Infow("Created synthetic subscription", "subscriptionID", sub.ID)
		s.publishCreated(ctx, sub)
		return sub, nil
	}

	gwSub, err := s.createAtGateway(ctx, sub, tier, req.PaymentCustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayPermanent) || errors.Is(err, domain.ErrResourceMissing) {
			// Постоянный отказ процессора, подписка не состоится
			now := time.Now().UTC()
			sub.Status = domain.SubscriptionStatusCancelled
			sub.CancelledAt = &now
			if updErr := s.subscriptionRepo.Update(ctx, sub); updErr != nil {
				s.log.Errorw("Failed to mark subscription cancelled after gateway rejection", "error", updErr, "subscriptionID", sub.ID)
			}
			s.metrics.IncSubscriptionStatusChange(string(domain.SubscriptionStatusCancelled))
			return nil, err
		}
		// Временный сбой после исчерпания повторов: запись остается в pending
		// без внешнего идентификатора, ее подберет сверка
		s.log.Warnw("Gateway create failed after retries, subscription left pending",
			"subscriptionID", sub.ID, "error", err)
		return nil, err
	}

	sub.ExternalSubscriptionID = gwSub.ExternalID
	if !gwSub.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = gwSub.CurrentPeriodStart
	}
	if !gwSub.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = gwSub.CurrentPeriodEnd
	}
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		s.log.Errorw("Failed to store external subscription id", "error", err, "subscriptionID", sub.ID)
		return nil, err
	}

	s.log.Infow("Created subscription", "subscriptionID", sub.ID, "externalID", sub.ExternalSubscriptionID)
	s.publishCreated(ctx, sub)
	return sub, nil
}

// createAtGateway заводит подписку у процессора с ограниченными повторами
func (s *subscriptionService) createAtGateway(ctx context.Context, sub *domain.Subscription, tier *domain.Tier, customerID string) (*GatewaySubscription, error) {
	metadata := map[string]string{
		"billing_subscription_id": sub.ID.String(),
		"creator_id":              sub.CreatorID.String(),
	}

	var gwSub *GatewaySubscription
	started := time.Now()
	err := retry.Do(ctx, s.retryPolicy, isTransient, func(ctx context.Context) error {
		var opErr error
		gwSub, opErr = s.gateway.CreateSubscription(ctx, customerID, tier.ExternalPriceID, metadata)
		return opErr
	})
	s.metrics.ObserveGatewayLatency("create_subscription", time.Since(started))
	if err != nil {
		s.metrics.IncGatewayError("create_subscription", gatewayErrorKind(err))
		return nil, err
	}
	return gwSub, nil
}

// GetByID возвращает подписку; доступ имеют только подписчик и автор
func (s *subscriptionService) GetByID(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		s.log.Errorw("Error fetching subscription", "error", err, "subscriptionID", id)
		return nil, err
	}

	if sub.SubscriberID != requesterID && sub.CreatorID != requesterID {
		s.log.Warnw("Forbidden subscription access", "subscriptionID", id, "requesterID", requesterID)
		return nil, domain.ErrForbidden
	}
	return sub, nil
}

// GetBySubscriberID возвращает подписки пользователя
func (s *subscriptionService) GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	subs, err := s.subscriptionRepo.GetBySubscriberID(ctx, subscriberID)
	if err != nil {
		s.log.Errorw("Failed to get subscriptions", "error", err, "subscriberID", subscriberID)
		return nil, err
	}
	return subs, nil
}

// Cancel помечает подписку к отмене в конце оплаченного периода.
// Доступ к контенту сохраняется до конца периода; окончательный перевод
// в cancelled выполняет событие процессора. Повторная отмена ничего
// не делает и не ходит к процессору.
func (s *subscriptionService) Cancel(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if sub.SubscriberID != requesterID {
		return nil, domain.ErrForbidden
	}

	if sub.Status == domain.SubscriptionStatusCancelled || sub.CancelledAt != nil {
		s.log.Debugw("Subscription already cancelled, no-op", "subscriptionID", id)
		return sub, nil
	}

	prevStatus := sub.Status
	now := time.Now().UTC()

	if sub.Kind == domain.SubscriptionKindSynthetic {
		sub.Status = domain.SubscriptionStatusCancelled
		sub.CancelledAt = &now
	} else {
		started := time.Now()
		gwSub, err := s.gateway.CancelSubscription(ctx, sub.ExternalSubscriptionID)
		s.metrics.ObserveGatewayLatency("cancel_subscription", time.Since(started))
		if err != nil {
			if errors.Is(err, domain.ErrResourceMissing) {
				// Процессор уже не знает о подписке, фиксируем отмену локально
				sub.Status = domain.SubscriptionStatusCancelled
				sub.CancelledAt = &now
			} else {
				s.metrics.IncGatewayError("cancel_subscription", gatewayErrorKind(err))
				s.log.Errorw("Failed to cancel subscription at gateway", "error", err, "subscriptionID", id)
				return nil, err
			}
		} else {
			sub.CancelledAt = &now
			if gwSub.CancelledAt != nil {
				sub.CancelledAt = gwSub.CancelledAt
			}
		}
	}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		s.log.Errorw("Failed to update cancelled subscription", "error", err, "subscriptionID", id)
		return nil, err
	}

	// При отмене в конце периода статус не меняется до события процессора
	if sub.Status != prevStatus {
		s.metrics.IncSubscriptionStatusChange(string(sub.Status))
	}
	if err := s.producer.PublishSubscriptionCancelled(ctx, sub); err != nil {
		s.log.Warnw("Failed to publish cancellation event", "error", err, "subscriptionID", id)
	}

	s.log.Infow("Cancelled subscription", "subscriptionID", id, "status", sub.Status)
	return sub, nil
}

// Reactivate снимает запланированную отмену, пока период не истек.
// Если ресурс у процессора уже удален, вернуть подписку нельзя,
// нужно оформлять новую.
func (s *subscriptionService) Reactivate(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if sub.SubscriberID != requesterID {
		return nil, domain.ErrForbidden
	}

	if sub.CancelledAt == nil && sub.Status != domain.SubscriptionStatusCancelled {
		s.log.Debugw("Subscription is not pending cancellation, no-op", "subscriptionID", id)
		return sub, nil
	}

	prevStatus := sub.Status

	if sub.Kind == domain.SubscriptionKindSynthetic {
		sub.Status = domain.SubscriptionStatusActive
		sub.CancelledAt = nil
	} else {
		started := time.Now()
		gwSub, err := s.gateway.ReactivateSubscription(ctx, sub.ExternalSubscriptionID)
		s.metrics.ObserveGatewayLatency("reactivate_subscription", time.Since(started))
		if err != nil {
			if errors.Is(err, domain.ErrResourceMissing) {
				s.log.Warnw("Subscription not reactivatable, processor resource missing", "subscriptionID", id)
				return nil, domain.ErrNotReactivatable
			}
			s.metrics.IncGatewayError("reactivate_subscription", gatewayErrorKind(err))
			return nil, err
		}

		sub.CancelledAt = nil
		if sub.Status == domain.SubscriptionStatusCancelled {
			// Ждем подтверждения от процессора прежде чем снова открыть доступ
			sub.Status = domain.SubscriptionStatusReactivatedPending
		}
		if status, ok := MapProcessorStatus(gwSub.Status); ok && status == domain.SubscriptionStatusActive {
			sub.Status = domain.SubscriptionStatusActive
		}
	}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		s.log.Errorw("Failed to update reactivated subscription", "error", err, "subscriptionID", id)
		return nil, err
	}

	if sub.Status != prevStatus {
		s.metrics.IncSubscriptionStatusChange(string(sub.Status))
	}
	if err := s.producer.PublishSubscriptionActivated(ctx, sub); err != nil {
		s.log.Warnw("Failed to publish reactivation event", "error", err, "subscriptionID", id)
	}

	s.log.Infow("Reactivated subscription", "subscriptionID", id, "status", sub.Status)
	return sub, nil
}

func (s *subscriptionService) publishCreated(ctx context.Context, sub *domain.Subscription) {
	if err := s.producer.PublishSubscriptionCreated(ctx, sub); err != nil {
		s.log.Warnw("Failed to publish creation event", "error", err, "subscriptionID", sub.ID)
	}
}

// gatewayErrorKind метка класса ошибки для метрик
func gatewayErrorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrGatewayTransient):
		return "transient"
	case errors.Is(err, domain.ErrResourceMissing):
		return "resource_missing"
	case errors.Is(err, domain.ErrGatewayPermanent):
		return "permanent"
	default:
		return "unknown"
	}
}
