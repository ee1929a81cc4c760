package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/maisonops/boutique_backend/config"
	"github.com/maisonops/boutique_backend/merxsync"
	"github.com/maisonops/boutique_backend/middlewares"
	"github.com/maisonops/boutique_backend/models"
	"github.com/maisonops/boutique_backend/reports"
	"github.com/maisonops/boutique_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("BACKOFFICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.SessionMiddleware())
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/auth/login", reports.LoginHandler())
	r.POST("/api/auth/logout", middlewares.RequireAuth(), reports.LogoutHandler())

	authed := r.Group("/api", middlewares.RequireAuth())
	{
		authed.GET("/analysis/inventory", reports.InventoryAnalysisHandler())
		authed.GET("/analysis/sales", reports.SalesAnalysisHandler())
		authed.GET("/receivings/history", reports.ReceivingHistoryHandler())

		authed.GET("/customers/lapsed", reports.LapsedCustomersHandler())
		authed.GET("/customers/match", reports.MatchCustomersHandler())
		authed.GET("/customers/:id", reports.CustomerProfileHandler())

		authed.GET("/processing-status", reports.ListProcessingStatusHandler())
		authed.POST("/processing-status", reports.MarkProcessingStatusHandler())

		authed.GET("/sync/status", merxsync.StatusHandler())
		authed.GET("/sync/runs", merxsync.SyncHistoryHandler())
		authed.GET("/sync/runs/:id", merxsync.SyncRunDetailHandler())

		admin := authed.Group("", middlewares.RequireAdmin())
		{
			admin.POST("/sync", merxsync.TriggerSyncHandler())
			admin.POST("/sync/runs/:id/retry", merxsync.RetrySyncRunHandler())
		}
	}

	// Pub/Sub push endpoint for the queued sync worker.
	r.POST("/pubsub/merx-sync", merxsync.PubSubPushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go runSyncScheduler(schedulerCtx, logger)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// runSyncScheduler enqueues a full sync every SYNC_INTERVAL_HOURS hours.
// Set to 0 to disable the schedule.
func runSyncScheduler(ctx context.Context, logger *logrus.Logger) {
	intervalHours := intFromEnv("SYNC_INTERVAL_HOURS", 24)
	if intervalHours <= 0 {
		logger.Info("sync scheduler disabled")
		return
	}

	ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		db := config.GetDB()
		if db == nil {
			continue
		}
		if merxsync.IsSyncRunning(ctx) {
			logger.Warn("scheduled sync skipped, previous run still active")
			continue
		}

		run := models.SyncRun{
			Status:      models.SyncRunStatusQueued,
			TriggeredBy: models.SyncTriggeredSchedule,
			ModulesJSON: merxsync.EncodeModules(merxsync.DefaultModules()),
		}
		if err := db.WithContext(ctx).Create(&run).Error; err != nil {
			config.LogError(logger, "main", "runSyncScheduler", "create run", nil, err)
			continue
		}
		if err := merxsync.ProcessSyncRun(ctx, db, run.ID); err != nil {
			config.LogError(logger, "main", "runSyncScheduler", "process run", run.ID, err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
