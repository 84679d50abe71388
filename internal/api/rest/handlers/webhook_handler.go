package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/internal/integration/stripe"
	"github.com/creatorlane/billing-service/internal/service"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// WebhookHandler принимает вебхуки платежного процессора
type WebhookHandler struct {
	verifier   *stripe.WebhookVerifier
	webhookSvc service.WebhookService
	log        *logger.Logger
}

// NewWebhookHandler создает обработчик вебхуков
func NewWebhookHandler(verifier *stripe.WebhookVerifier, webhookSvc service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		webhookSvc: webhookSvc,
		log:        log,
	}
}

// HandleStripeWebhook проверяет подпись, разбирает событие и передает
// его в обработку. Ошибка обработки возвращает 500, чтобы процессор
// повторил доставку; дедупликация делает повтор безопасным.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warnw("Failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if err := h.verifier.VerifySignature(payload, c.GetHeader("Stripe-Signature")); err != nil {
		h.log.Warnw("Webhook signature verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	event, err := h.verifier.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, domain.ErrWebhookValidationFailed) {
			h.log.Warnw("Malformed webhook event", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse event"})
		return
	}

	// Неподдерживаемые типы событий подтверждаем сразу
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.webhookSvc.ProcessEvent(c.Request.Context(), event); err != nil {
		h.log.Errorw("Failed to process webhook event", "error", err, "eventID", event.EventID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
