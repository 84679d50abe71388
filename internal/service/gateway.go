package service

import (
	"context"
	"time"
)

// GatewaySubscription представляет состояние подписки на стороне
// платежного процессора.
type GatewaySubscription struct {
	ExternalID         string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelledAt        *time.Time
}

// SubscriptionGateway описывает операции над подписками на стороне
// платежного процессора. Ошибки классифицируются сентинелами
// domain.ErrGatewayTransient, domain.ErrGatewayPermanent и
// domain.ErrResourceMissing.
type SubscriptionGateway interface {
	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*GatewaySubscription, error)
	GetSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error)
	ReactivateSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error)
}
