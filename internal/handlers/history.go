package handlers

import (
	"context"
	"net/http"
	"strconv"

	"DF-WIZARD/internal/models"
	"DF-WIZARD/internal/services"

	"github.com/gin-gonic/gin"
)

// HistoryReader is the read side of the generation history.
type HistoryReader interface {
	List(ctx context.Context, status string, limit, offset int) ([]models.GenerationLog, int64, error)
	Stats(ctx context.Context) (*services.GenerationStats, error)
}

type HistoryHandler struct {
	history HistoryReader
}

func NewHistoryHandler(history HistoryReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) Register(r gin.IRouter) {
	api := r.Group("/api/history")
	api.GET("", h.GetHistory)
	api.GET("/stats", h.GetStats)
}

type HistoryResponse struct {
	Logs       []models.GenerationLog `json:"logs"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

// GetHistory returns generation runs with pagination, optionally filtered by status
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}

	status := c.Query("status")
	if status != "" && status != models.GenerationStatusCompleted && status != models.GenerationStatusFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status filter"})
		return
	}

	logs, total, err := h.history.List(c.Request.Context(), status, limit, (page-1)*limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}
	if logs == nil {
		logs = []models.GenerationLog{}
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	})
}

func (h *HistoryHandler) GetStats(c *gin.Context) {
	stats, err := h.history.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
