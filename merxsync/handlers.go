package merxsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/maisonops/boutique_backend/config"
	"github.com/maisonops/boutique_backend/models"
	"github.com/maisonops/boutique_backend/utils"
	"gorm.io/gorm"
)

var validate = validator.New()

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		db := config.GetDB()

		runs, err := models.ListSyncRuns(ctx, db, 1)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := StatusResponse{Modules: DefaultModules()}
		if len(runs) > 0 {
			run := mapRunToResponse(runs[0])
			resp.LastRun = &run
			resp.Modules = DecodeModules(runs[0].ModulesJSON)
		}
		if snap, err := models.GetSnapshot(ctx, db, models.SnapshotKeyInventoryAnalysis); err == nil && snap != nil {
			resp.InventorySyncedAt = formatTime(&snap.SyncedAt)
		}
		if snap, err := models.GetSnapshot(ctx, db, models.SnapshotKeySalesAnalysis); err == nil && snap != nil {
			resp.SalesSyncedAt = formatTime(&snap.SyncedAt)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}

		if IsSyncRunning(ctx) {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync is already running"})
			return
		}

		modules := req.Modules
		if isEmptyModules(modules) {
			modules = DefaultModules()
		}

		db := config.GetDB()
		run := models.SyncRun{
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredManual,
			ModulesJSON:  EncodeModules(modules),
			LookbackDays: req.LookbackDays,
		}
		if err := db.WithContext(ctx).Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		dispatchSyncRun(ctx, db, run.ID)
		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.ListSyncRuns(c.Request.Context(), config.GetDB(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB()
		run, err := models.GetSyncRun(ctx, db, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		errs, err := models.ListSyncErrors(ctx, db, run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(*run),
			Errors:          mapErrors(errs),
		})
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		if IsSyncRunning(ctx) {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync is already running"})
			return
		}

		db := config.GetDB()
		run, err := models.GetSyncRun(ctx, db, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newRun := models.SyncRun{
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredRetry,
			ModulesJSON:  run.ModulesJSON,
			LookbackDays: run.LookbackDays,
			ParentRunId:  &run.ID,
		}
		if err := db.WithContext(ctx).Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		dispatchSyncRun(ctx, db, newRun.ID)
		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

// dispatchSyncRun hands the queued run to a worker. With Pub/Sub configured
// the run travels through the push subscription; otherwise it executes on an
// in-process goroutine detached from the request.
func dispatchSyncRun(ctx context.Context, db *gorm.DB, runId uint) {
	if pubsubEnabled() {
		err := PublishSyncRun(ctx, runId)
		if err == nil {
			return
		}
		config.LogError(config.GetLogger(), "merxsync", "dispatchSyncRun", "publish failed, running inline", runId, err)
	}
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if err := ProcessSyncRun(runCtx, db, runId); err != nil {
			config.LogError(config.GetLogger(), "merxsync", "ProcessSyncRun", "", runId, err)
		}
	}()
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		ErrorMessage:  run.ErrorMessage,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapErrors(errorsList []models.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			ExternalId: errItem.ExternalId,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}

func isEmptyModules(mod SyncModules) bool {
	return !mod.Receivings && !mod.Sales && !mod.Customers
}
