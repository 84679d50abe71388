package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/creatorlane/billing-service/internal/service"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// ReconciliationHandler запускает сверку и отдает журнал аудита
type ReconciliationHandler struct {
	reconciliationSvc service.ReconciliationService
	log               *logger.Logger
}

// NewReconciliationHandler создает обработчик сверки
func NewReconciliationHandler(reconciliationSvc service.ReconciliationService, log *logger.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationSvc: reconciliationSvc,
		log:               log,
	}
}

// TriggerReconciliation запускает внеочередной прогон сверки
func (h *ReconciliationHandler) TriggerReconciliation(c *gin.Context) {
	record, err := h.reconciliationSvc.Run(c.Request.Context())
	if err != nil {
		h.log.Errorw("Reconciliation run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Reconciliation failed"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// ListAudits возвращает последние записи журнала сверок
func (h *ReconciliationHandler) ListAudits(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	records, err := h.reconciliationSvc.ListAudits(c.Request.Context(), limit)
	if err != nil {
		h.log.Errorw("Failed to list reconciliation audits", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audits"})
		return
	}

	c.JSON(http.StatusOK, records)
}
