package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/middleware"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// fakeSubscriptionService программируемая подмена сервиса подписок
type fakeSubscriptionService struct {
	createFn     func(ctx context.Context, subscriberID uuid.UUID, req domain.SubscriptionRequest) (*domain.Subscription, error)
	getFn        func(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error)
	listFn       func(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error)
	cancelFn     func(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error)
	reactivateFn func(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error)
}

func (f *fakeSubscriptionService) Create(ctx context.Context, subscriberID uuid.UUID, req domain.SubscriptionRequest) (*domain.Subscription, error) {
	return f.createFn(ctx, subscriberID, req)
}

func (f *fakeSubscriptionService) GetByID(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
	return f.getFn(ctx, id, requesterID)
}

func (f *fakeSubscriptionService) GetBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	return f.listFn(ctx, subscriberID)
}

func (f *fakeSubscriptionService) Cancel(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
	return f.cancelFn(ctx, id, requesterID)
}

func (f *fakeSubscriptionService) Reactivate(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
	return f.reactivateFn(ctx, id, requesterID)
}

// setupSubscriptionRouter собирает роутер с подставной аутентификацией
func setupSubscriptionRouter(svc *fakeSubscriptionService, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSubscriptionHandler(svc, logger.New(logger.ERROR))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(string(middleware.ContextUserIDKey), userID.String())
	})
	router.POST("/subscriptions", h.CreateSubscription)
	router.GET("/subscriptions", h.ListSubscriptions)
	router.GET("/subscriptions/:id", h.GetSubscription)
	router.PUT("/subscriptions/:id", h.UpdateSubscription)
	return router
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateSubscription_Created(t *testing.T) {
	userID := uuid.New()
	creatorID := uuid.New()
	tierID := uuid.New()
	svc := &fakeSubscriptionService{
		createFn: func(ctx context.Context, subscriberID uuid.UUID, req domain.SubscriptionRequest) (*domain.Subscription, error) {
			assert.Equal(t, userID, subscriberID)
			assert.Equal(t, creatorID, req.CreatorID)
			return &domain.Subscription{
				ID:           uuid.New(),
				SubscriberID: subscriberID,
				CreatorID:    req.CreatorID,
				TierID:       req.TierID,
				Status:       domain.SubscriptionStatusPending,
			}, nil
		},
	}

	router := setupSubscriptionRouter(svc, userID)
	w := performJSON(t, router, http.MethodPost, "/subscriptions", gin.H{
		"creator_id":          creatorID,
		"tier_id":             tierID,
		"payment_customer_id": "cus_123",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp domain.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.SubscriberID)
	assert.Equal(t, domain.SubscriptionStatusPending, resp.Status)
}

func TestCreateSubscription_MissingFields(t *testing.T) {
	svc := &fakeSubscriptionService{}
	router := setupSubscriptionRouter(svc, uuid.New())

	w := performJSON(t, router, http.MethodPost, "/subscriptions", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSubscription_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid tier", domain.ErrInvalidTier, http.StatusBadRequest},
		{"duplicate", domain.ErrDuplicateActiveSubscription, http.StatusConflict},
		{"gateway transient", domain.ErrGatewayTransient, http.StatusBadGateway},
		{"gateway permanent", domain.ErrGatewayPermanent, http.StatusPaymentRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeSubscriptionService{
				createFn: func(ctx context.Context, subscriberID uuid.UUID, req domain.SubscriptionRequest) (*domain.Subscription, error) {
					return nil, tc.err
				},
			}
			router := setupSubscriptionRouter(svc, uuid.New())
			w := performJSON(t, router, http.MethodPost, "/subscriptions", gin.H{
				"creator_id": uuid.New(),
				"tier_id":    uuid.New(),
			})
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestGetSubscription_InvalidID(t *testing.T) {
	svc := &fakeSubscriptionService{}
	router := setupSubscriptionRouter(svc, uuid.New())

	w := performJSON(t, router, http.MethodGet, "/subscriptions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSubscription_Forbidden(t *testing.T) {
	svc := &fakeSubscriptionService{
		getFn: func(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
			return nil, domain.ErrForbidden
		},
	}
	router := setupSubscriptionRouter(svc, uuid.New())

	w := performJSON(t, router, http.MethodGet, "/subscriptions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateSubscription_CancelAction(t *testing.T) {
	subID := uuid.New()
	cancelled := false
	svc := &fakeSubscriptionService{
		cancelFn: func(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
			cancelled = true
			assert.Equal(t, subID, id)
			return &domain.Subscription{ID: id, Status: domain.SubscriptionStatusActive}, nil
		},
	}
	router := setupSubscriptionRouter(svc, uuid.New())

	w := performJSON(t, router, http.MethodPut, "/subscriptions/"+subID.String(), gin.H{"action": "cancel"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, cancelled)
}

func TestUpdateSubscription_ReactivateNotReactivatable(t *testing.T) {
	svc := &fakeSubscriptionService{
		reactivateFn: func(ctx context.Context, id, requesterID uuid.UUID) (*domain.Subscription, error) {
			return nil, domain.ErrNotReactivatable
		},
	}
	router := setupSubscriptionRouter(svc, uuid.New())

	w := performJSON(t, router, http.MethodPut, "/subscriptions/"+uuid.NewString(), gin.H{"action": "reactivate"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateSubscription_UnknownAction(t *testing.T) {
	svc := &fakeSubscriptionService{}
	router := setupSubscriptionRouter(svc, uuid.New())

	w := performJSON(t, router, http.MethodPut, "/subscriptions/"+uuid.NewString(), gin.H{"action": "pause"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSubscriptions_OK(t *testing.T) {
	userID := uuid.New()
	svc := &fakeSubscriptionService{
		listFn: func(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
			assert.Equal(t, userID, subscriberID)
			return []domain.Subscription{{ID: uuid.New(), SubscriberID: subscriberID}}, nil
		},
	}
	router := setupSubscriptionRouter(svc, userID)

	w := performJSON(t, router, http.MethodGet, "/subscriptions", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []domain.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
}
