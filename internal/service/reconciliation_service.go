package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/metrics"
	"github.com/creatorlane/billing-service/internal/repository"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// Записи без внешнего идентификатора моложе этого возраста считаются
// незавершенным созданием и не трогаются; старше — брошенными, сверка
// закрывает их, освобождая тройку для новой подписки
const missingExternalIDGrace = time.Hour

// ReconciliationService интерфейс периодической сверки леджера с процессором
type ReconciliationService interface {
	Run(ctx context.Context) (*domain.SyncAuditRecord, error)
	ListAudits(ctx context.Context, limit int) ([]domain.SyncAuditRecord, error)
}

type reconciliationService struct {
	subscriptionRepo repository.SubscriptionRepository
	auditRepo        repository.SyncAuditRepository
	gateway          SubscriptionGateway
	metrics          metrics.BillingMetrics
	log              *logger.Logger
}

// NewReconciliationService создает сервис сверки
func NewReconciliationService(
	subscriptionRepo repository.SubscriptionRepository,
	auditRepo repository.SyncAuditRepository,
	gateway SubscriptionGateway,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) ReconciliationService {
	return &reconciliationService{
		subscriptionRepo: subscriptionRepo,
		auditRepo:        auditRepo,
		gateway:          gateway,
		metrics:          billingMetrics,
		log:              log,
	}
}

// Run проходит по всем действующим подпискам, обеспеченным процессором,
// и сверяет их с его состоянием. Процессор считается источником истины:
// расхождения исправляются в леджере, а не у процессора. Итог прогона
// записывается в журнал аудита.
func (s *reconciliationService) Run(ctx context.Context) (*domain.SyncAuditRecord, error) {
	s.log.Infow("Starting reconciliation sweep")
	s.metrics.IncReconciliationRun()

	subs, err := s.subscriptionRepo.ListOpenProcessorBacked(ctx)
	if err != nil {
		s.log.Errorw("Failed to list subscriptions for reconciliation", "error", err)
		return nil, err
	}

	record := &domain.SyncAuditRecord{
		ID:           uuid.New(),
		RunAt:        time.Now().UTC(),
		CheckedCount: len(subs),
	}

	for i := range subs {
		sub := &subs[i]
		entry, corrected := s.reconcileOne(ctx, sub)
		if corrected {
			record.SyncedCount++
		}
		if entry != nil {
			record.Mismatches = append(record.Mismatches, *entry)
			s.metrics.AddReconciliationMismatches(entry.Issue, 1)
		}
	}

	if err := s.auditRepo.Create(ctx, record); err != nil {
		s.log.Errorw("Failed to persist reconciliation audit record", "error", err)
		return nil, err
	}

	s.log.Infow("Reconciliation sweep finished",
		"checked", record.CheckedCount, "synced", record.SyncedCount, "mismatches", len(record.Mismatches))
	return record, nil
}

// reconcileOne сверяет одну подписку. Возвращает запись о расхождении
// (nil при совпадении) и признак того, что запись была фактически
// приведена в соответствие с процессором.
func (s *reconciliationService) reconcileOne(ctx context.Context, sub *domain.Subscription) (*domain.MismatchEntry, bool) {
	// Подписка без внешнего идентификатора означает, что создание
	// у процессора так и не состоялось
	if sub.ExternalSubscriptionID == "" {
		return s.resolveMissingExternal(ctx, sub)
	}

	started := time.Now()
	gwSub, err := s.gateway.GetSubscription(ctx, sub.ExternalSubscriptionID)
	s.metrics.ObserveGatewayLatency("get_subscription", time.Since(started))
	if err != nil {
		if errors.Is(err, domain.ErrResourceMissing) {
			// Ресурс удален у процессора, локальная запись закрывается
			now := time.Now().UTC()
			sub.Status = domain.SubscriptionStatusCancelled
			if sub.CancelledAt == nil {
				sub.CancelledAt = &now
			}
			if updErr := s.subscriptionRepo.Update(ctx, sub); updErr != nil {
				s.log.Errorw("Failed to close orphaned subscription", "error", updErr, "subscriptionID", sub.ID)
				return &domain.MismatchEntry{
					ExternalSubscriptionID: sub.ExternalSubscriptionID,
					Issue:                  domain.MismatchIssueResourceMissing,
					ResolutionAction:       domain.MismatchResolutionNone,
				}, false
			}
			s.metrics.IncSubscriptionStatusChange(string(domain.SubscriptionStatusCancelled))
			return &domain.MismatchEntry{
				ExternalSubscriptionID: sub.ExternalSubscriptionID,
				Issue:                  domain.MismatchIssueResourceMissing,
				ResolutionAction:       domain.MismatchResolutionCancelled,
			}, true
		}

		s.metrics.IncGatewayError("get_subscription", gatewayErrorKind(err))
		s.log.Warnw("Failed to retrieve subscription from processor",
			"error", err, "subscriptionID", sub.ID, "externalID", sub.ExternalSubscriptionID)
		return &domain.MismatchEntry{
			ExternalSubscriptionID: sub.ExternalSubscriptionID,
			Issue:                  domain.MismatchIssueRetrieveFailed,
			ResolutionAction:       domain.MismatchResolutionNone,
		}, false
	}

	status, ok := MapProcessorStatus(gwSub.Status)
	if !ok {
		s.log.Warnw("Unknown processor status during reconciliation",
			"subscriptionID", sub.ID, "processorStatus", gwSub.Status)
		return &domain.MismatchEntry{
			ExternalSubscriptionID: sub.ExternalSubscriptionID,
			Issue:                  domain.MismatchIssueStatusDrift,
			ResolutionAction:       domain.MismatchResolutionNone,
		}, false
	}

	statusDrifted := sub.Status != status
	changed := applyRemoteState(sub, status, gwSub.CurrentPeriodStart, gwSub.CurrentPeriodEnd, gwSub.CancelledAt)
	if !changed {
		return nil, false
	}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrStaleData) {
			// Запись только что изменил вебхук, его данные свежее
			s.log.Debugw("Skipping correction, record updated concurrently", "subscriptionID", sub.ID)
			return nil, false
		}
		s.log.Errorw("Failed to correct drifted subscription", "error", err, "subscriptionID", sub.ID)
		return &domain.MismatchEntry{
			ExternalSubscriptionID: sub.ExternalSubscriptionID,
			Issue:                  domain.MismatchIssueStatusDrift,
			ResolutionAction:       domain.MismatchResolutionNone,
		}, false
	}

	if !statusDrifted {
		// Обновились только границы периода, это не расхождение статуса
		return nil, true
	}

	s.metrics.IncSubscriptionStatusChange(string(sub.Status))
	s.log.Infow("Corrected drifted subscription",
		"subscriptionID", sub.ID, "status", sub.Status)
	return &domain.MismatchEntry{
		ExternalSubscriptionID: sub.ExternalSubscriptionID,
		Issue:                  domain.MismatchIssueStatusDrift,
		ResolutionAction:       domain.CorrectedTo(sub.Status),
	}, true
}

// resolveMissingExternal разбирается с записью без внешнего идентификатора.
// Свежие записи не трогаем: создание могло еще идти. Старые закрываем,
// чтобы тройка (подписчик, автор, уровень) не оставалась занятой навсегда.
func (s *reconciliationService) resolveMissingExternal(ctx context.Context, sub *domain.Subscription) (*domain.MismatchEntry, bool) {
	if time.Since(sub.CreatedAt) < missingExternalIDGrace {
		s.log.Warnw("Subscription has no external id yet", "subscriptionID", sub.ID)
		return &domain.MismatchEntry{
			ExternalSubscriptionID: "",
			Issue:                  domain.MismatchIssueMissingExternal,
			ResolutionAction:       domain.MismatchResolutionNone,
		}, false
	}

	now := time.Now().UTC()
	sub.Status = domain.SubscriptionStatusCancelled
	if sub.CancelledAt == nil {
		sub.CancelledAt = &now
	}
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrStaleData) {
			// Запись только что изменилась, разберемся на следующем прогоне
			return nil, false
		}
		s.log.Errorw("Failed to close abandoned subscription", "error", err, "subscriptionID", sub.ID)
		return &domain.MismatchEntry{
			ExternalSubscriptionID: "",
			Issue:                  domain.MismatchIssueMissingExternal,
			ResolutionAction:       domain.MismatchResolutionNone,
		}, false
	}

	s.metrics.IncSubscriptionStatusChange(string(domain.SubscriptionStatusCancelled))
	s.log.Infow("Closed abandoned subscription without external id", "subscriptionID", sub.ID)
	return &domain.MismatchEntry{
		ExternalSubscriptionID: "",
		Issue:                  domain.MismatchIssueMissingExternal,
		ResolutionAction:       domain.MismatchResolutionCancelled,
	}, true
}

// ListAudits возвращает последние записи журнала сверок
func (s *reconciliationService) ListAudits(ctx context.Context, limit int) ([]domain.SyncAuditRecord, error) {
	return s.auditRepo.List(ctx, limit)
}
