package reports

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/maisonops/boutique_backend/config"
	"github.com/maisonops/boutique_backend/models"
	"github.com/maisonops/boutique_backend/utils"
)

var validate = validator.New()

type MarkProcessingRequest struct {
	EntityType     string `json:"entityType" validate:"required,oneof=item grid"`
	EntityId       string `json:"entityId" validate:"required,max=64"`
	Status         string `json:"status" validate:"required,oneof=new completed skipped"`
	ReceivingDocId string `json:"receivingDocId" validate:"omitempty,max=64"`
}

// MarkProcessingStatusHandler records the operator workflow state for an
// item or grid. Last write wins.
func MarkProcessingStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MarkProcessingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}

		ctx := c.Request.Context()
		now := time.Now()
		status := models.ProcessingStatus{
			EntityType:     req.EntityType,
			EntityId:       strings.TrimSpace(req.EntityId),
			ReceivingDocId: strings.TrimSpace(req.ReceivingDocId),
			Status:         req.Status,
		}
		if req.Status != models.ProcessingStatusNew {
			status.ProcessedAt = &now
			if username, ok := utils.GetUsernameFromContext(ctx); ok {
				status.ProcessedBy = username
			}
		}

		if err := models.UpsertProcessingStatus(ctx, config.GetDB(), &status); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ListProcessingStatusHandler lists workflow rows, optionally filtered by
// entity type and status.
func ListProcessingStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType := strings.TrimSpace(c.Query("entityType"))
		status := strings.TrimSpace(c.Query("status"))

		statuses, err := models.ListProcessingStatuses(c.Request.Context(), config.GetDB(), entityType, status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": statuses})
	}
}
