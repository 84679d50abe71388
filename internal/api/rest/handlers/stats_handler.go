package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/creatorlane/billing-service/internal/service"
	"github.com/creatorlane/billing-service/pkg/logger"
)

// StatsHandler отдает сводную статистику по подпискам
type StatsHandler struct {
	statsSvc service.StatsService
	log      *logger.Logger
}

// NewStatsHandler создает обработчик статистики
func NewStatsHandler(statsSvc service.StatsService, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		statsSvc: statsSvc,
		log:      log,
	}
}

// GetStats возвращает сводку по подпискам и MRR
func (h *StatsHandler) GetStats(c *gin.Context) {
	stats, err := h.statsSvc.GetStats(c.Request.Context())
	if err != nil {
		h.log.Errorw("Failed to get subscription stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
