package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/middleware"
	"github.com/creatorlane/billing-service/internal/service"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// SubscriptionHandler обработчик для подписок
type SubscriptionHandler struct {
	subscriptionSvc service.SubscriptionService
	log             *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(subscriptionSvc service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionSvc: subscriptionSvc,
		log:             log,
	}
}

// updateSubscriptionRequest тело запроса на изменение подписки
type updateSubscriptionRequest struct {
	Action string `json:"action" binding:"required,oneof=cancel reactivate"`
}

// CreateSubscription создает новую подписку для аутентифицированного пользователя
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	subscriberID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	var req domain.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnw("Invalid subscription request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription, err := h.subscriptionSvc.Create(c.Request.Context(), subscriberID, req)
	if err != nil {
		h.respondSubscriptionError(c, err, "Failed to create subscription")
		return
	}

	c.JSON(http.StatusCreated, subscription)
}

// GetSubscription возвращает подписку по ID
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID format"})
		return
	}

	subscription, err := h.subscriptionSvc.GetByID(c.Request.Context(), id, requesterID)
	if err != nil {
		h.respondSubscriptionError(c, err, "Failed to get subscription")
		return
	}

	c.JSON(http.StatusOK, subscription)
}

// ListSubscriptions возвращает подписки аутентифицированного пользователя
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	subscriberID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	subscriptions, err := h.subscriptionSvc.GetBySubscriberID(c.Request.Context(), subscriberID)
	if err != nil {
		h.log.Errorw("Failed to list subscriptions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get subscriptions"})
		return
	}

	c.JSON(http.StatusOK, subscriptions)
}

// UpdateSubscription выполняет действие над подпиской: отмену в конце
// периода или снятие запланированной отмены
func (h *SubscriptionHandler) UpdateSubscription(c *gin.Context) {
	requesterID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID format"})
		return
	}

	var req updateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var subscription *domain.Subscription
	switch req.Action {
	case "cancel":
		subscription, err = h.subscriptionSvc.Cancel(c.Request.Context(), id, requesterID)
	case "reactivate":
		subscription, err = h.subscriptionSvc.Reactivate(c.Request.Context(), id, requesterID)
	}
	if err != nil {
		h.respondSubscriptionError(c, err, "Failed to update subscription")
		return
	}

	c.JSON(http.StatusOK, subscription)
}

// respondSubscriptionError переводит доменные ошибки в HTTP статусы
func (h *SubscriptionHandler) respondSubscriptionError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, domain.ErrInvalidTier):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or inactive tier"})
	case errors.Is(err, domain.ErrDuplicateActiveSubscription):
		c.JSON(http.StatusConflict, gin.H{"error": "Active subscription already exists"})
	case errors.Is(err, domain.ErrNotReactivatable):
		c.JSON(http.StatusConflict, gin.H{"error": "Subscription can no longer be reactivated, create a new one"})
	case errors.Is(err, domain.ErrGatewayTransient):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment processor temporarily unavailable"})
	case errors.Is(err, domain.ErrGatewayPermanent), errors.Is(err, domain.ErrResourceMissing):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Payment processor rejected the request"})
	default:
		h.log.Errorw(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
