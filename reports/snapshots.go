package reports

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maisonops/boutique_backend/config"
	"github.com/maisonops/boutique_backend/models"
)

// SnapshotResponse wraps a precomputed payload with its computation time so
// clients can show data freshness.
type SnapshotResponse struct {
	SyncedAt string          `json:"syncedAt"`
	Data     json.RawMessage `json:"data"`
}

func snapshotHandler(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := models.GetSnapshot(c.Request.Context(), config.GetDB(), key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if snap == nil {
			c.JSON(http.StatusOK, gin.H{"message": "no data yet, run a sync first"})
			return
		}
		c.JSON(http.StatusOK, SnapshotResponse{
			SyncedAt: snap.SyncedAt.UTC().Format(time.RFC3339),
			Data:     json.RawMessage(snap.Payload),
		})
	}
}

func InventoryAnalysisHandler() gin.HandlerFunc {
	return snapshotHandler(models.SnapshotKeyInventoryAnalysis)
}

func SalesAnalysisHandler() gin.HandlerFunc {
	return snapshotHandler(models.SnapshotKeySalesAnalysis)
}

func ReceivingHistoryHandler() gin.HandlerFunc {
	return snapshotHandler(models.SnapshotKeyReceivingHistory)
}
