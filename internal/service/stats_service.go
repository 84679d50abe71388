package service

import (
	"context"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/repository"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// StatsService интерфейс сводной статистики по подпискам
type StatsService interface {
	GetStats(ctx context.Context) (*domain.SubscriptionStats, error)
}

type statsService struct {
	subscriptionRepo repository.SubscriptionRepository
	log              *logger.Logger
}

// NewStatsService создает сервис статистики
func NewStatsService(subscriptionRepo repository.SubscriptionRepository, log *logger.Logger) StatsService {
	return &statsService{
		subscriptionRepo: subscriptionRepo,
		log:              log,
	}
}

// GetStats возвращает сводку для операторских дашбордов
func (s *statsService) GetStats(ctx context.Context) (*domain.SubscriptionStats, error) {
	stats, err := s.subscriptionRepo.GetStats(ctx)
	if err != nil {
		s.log.Errorw("Failed to compute subscription stats", "error", err)
		return nil, err
	}
	return stats, nil
}
