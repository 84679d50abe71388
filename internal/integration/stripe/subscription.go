package stripe

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/creatorlane/billing-service/internal/service"
)

// SubscriptionResponse представляет ответ от API Stripe о подписке
type SubscriptionResponse struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         *int64            `json:"canceled_at"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Created            int64             `json:"created"`
}

// Gateway реализует операции над подписками через API Stripe
type Gateway struct {
	client *Client
}

// NewGateway создает шлюз подписок поверх клиента Stripe
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

// CreateSubscription создает новую подписку в Stripe
func (g *Gateway) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*service.GatewaySubscription, error) {
	g.client.log.Debugw("Creating Stripe subscription", "customer", customerID, "price", priceID)

	formData := url.Values{}
	formData.Add("customer", customerID)
	formData.Add("items[0][price]", priceID)
	for key, value := range metadata {
		formData.Add(fmt.Sprintf("metadata[%s]", key), value)
	}

	var resp SubscriptionResponse
	if err := g.client.doForm(ctx, "POST", "/subscriptions", formData, &resp); err != nil {
		return nil, err
	}

	g.client.log.Infow("Created Stripe subscription", "externalID", resp.ID, "status", resp.Status)
	return toGatewaySubscription(&resp), nil
}

// GetSubscription получает текущее состояние подписки из Stripe
func (g *Gateway) GetSubscription(ctx context.Context, externalID string) (*service.GatewaySubscription, error) {
	g.client.log.Debugw("Getting Stripe subscription", "externalID", externalID)

	var resp SubscriptionResponse
	if err := g.client.doForm(ctx, "GET", "/subscriptions/"+externalID, nil, &resp); err != nil {
		return nil, err
	}
	return toGatewaySubscription(&resp), nil
}

// CancelSubscription помечает подписку к отмене в конце оплаченного
// периода. Доступ до конца периода сохраняется.
func (g *Gateway) CancelSubscription(ctx context.Context, externalID string) (*service.GatewaySubscription, error) {
	g.client.log.Debugw("Cancelling Stripe subscription at period end", "externalID", externalID)

	formData := url.Values{}
	formData.Add("cancel_at_period_end", "true")

	var resp SubscriptionResponse
	if err := g.client.doForm(ctx, "POST", "/subscriptions/"+externalID, formData, &resp); err != nil {
		return nil, err
	}

	g.client.log.Infow("Cancelled Stripe subscription at period end", "externalID", resp.ID)
	return toGatewaySubscription(&resp), nil
}

// ReactivateSubscription снимает пометку об отмене, если период
// еще не закончился.
func (g *Gateway) ReactivateSubscription(ctx context.Context, externalID string) (*service.GatewaySubscription, error) {
	g.client.log.Debugw("Reactivating Stripe subscription", "externalID", externalID)

	formData := url.Values{}
	formData.Add("cancel_at_period_end", "false")

	var resp SubscriptionResponse
	if err := g.client.doForm(ctx, "POST", "/subscriptions/"+externalID, formData, &resp); err != nil {
		return nil, err
	}

	g.client.log.Infow("Reactivated Stripe subscription", "externalID", resp.ID)
	return toGatewaySubscription(&resp), nil
}

func toGatewaySubscription(resp *SubscriptionResponse) *service.GatewaySubscription {
	sub := &service.GatewaySubscription{
		ExternalID:         resp.ID,
		Status:             resp.Status,
		CancelAtPeriodEnd:  resp.CancelAtPeriodEnd,
		CurrentPeriodStart: unixTime(resp.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(resp.CurrentPeriodEnd),
	}
	if resp.CanceledAt != nil {
		t := time.Unix(*resp.CanceledAt, 0).UTC()
		sub.CancelledAt = &t
	}
	return sub
}

// unixTime переводит Unix-время Stripe в time.Time. Отсутствующее поле
// приходит нулем и должно остаться нулевым временем, а не эпохой,
// иначе оно перезапишет настоящие границы периода.
func unixTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
