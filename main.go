// @title           Stratix API
// @version         1.0
// @description     Stratix OKR backend - bulk import and weighted progress endpoints.

// @contact.name   API Support

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @schemes http https
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "stratix/docs"
	"stratix/handlers"
	"stratix/importer"
	"stratix/models"
	"stratix/progress"
	"stratix/repository"
	"stratix/services"
	"stratix/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func CORSConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:9000",
	}
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, origin)
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Content-Type", "Content-Length", "Accept-Encoding",
		"Accept", "Origin", "X-Requested-With", "Authorization", "User-Agent",
		"Cache-Control", "Referer",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD", "PATCH"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Type", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func main() {
	log := newLogger()

	db := storage.InitDB()
	gormDB := storage.InitGormDB()

	if os.Getenv("AUTO_MIGRATE") == "true" {
		err := gormDB.AutoMigrate(
			&models.Area{}, &models.Objective{}, &models.Initiative{}, &models.Subtask{},
			&models.ImportJob{}, &models.ImportJobItem{},
		)
		if err != nil {
			log.WithError(err).Fatal("auto migration failed")
		}
	}

	// Repositories and engines
	importRepo := repository.NewImportRepository(gormDB)
	jobRepo := repository.NewJobRepository(gormDB)
	progressRepo := repository.NewProgressRepository(gormDB)
	engine := progress.NewEngine(progressRepo, log)
	mailer := services.NewEmailService(log)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	objects, err := storage.NewObjectStore(ctx)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("object storage init failed")
	}

	coord := importer.NewCoordinator(importRepo, jobRepo, objects, log).
		WithRecalc(func(ctx context.Context, tenantID, initiativeID int) error {
			_, _, err := engine.RecalculateParentProgress(ctx, tenantID, initiativeID)
			return err
		}).
		WithNotifier(mailer.SendJobCompletionEmail)

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		dedup, err := storage.NewDedupStore(redisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, dedup falls back to the database")
		} else {
			coord.WithDeduper(dedup)
			defer dedup.Close()
		}
	}

	// Housekeeping: expired sessions and jobs stuck pending
	c := cron.New()
	if _, err := c.AddFunc("30 2 * * *", func() {
		if err := storage.CleanupExpiredSessions(db); err != nil {
			log.WithError(err).Warn("session cleanup failed")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if n, err := jobRepo.FailStalePending(ctx, 24*time.Hour); err != nil {
			log.WithError(err).Warn("stale job sweep failed")
		} else if n > 0 {
			log.WithField("count", n).Info("stale pending jobs marked failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("cron setup failed")
	}
	c.Start()
	defer c.Stop()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.MaxMultipartMemory = 8 << 20
	r.Use(cors.New(CORSConfig()))

	// Auth / session
	r.POST("/api/login", handlers.LoginHandler(db))
	r.POST("/api/validate-session", handlers.ValidateSession(db))

	// Import pipeline
	r.POST("/api/tenants/:tenant_id/import", handlers.ImportUploadHandler(coord, objects))
	r.POST("/api/tenants/:tenant_id/import/upload-complete", handlers.UploadCompleteHandler(coord))

	// Job status and history
	r.GET("/api/jobs", handlers.ListJobs(jobRepo))
	r.GET("/api/jobs/:job_id", handlers.GetJobStatus(jobRepo))
	r.GET("/api/jobs/:job_id/items", handlers.ListJobItems(jobRepo))
	r.GET("/api/jobs/:job_id/report.csv", handlers.JobReportCSV(jobRepo))
	r.GET("/api/jobs/:job_id/report.pdf", handlers.JobReportPDF(jobRepo))
	r.POST("/api/jobs/:job_id/cancel", handlers.CancelJob(coord))

	// Subtasks / weighted progress
	r.GET("/api/initiatives/:initiative_id/subtasks", handlers.ListSubtasks(progressRepo))
	r.GET("/api/initiatives/:initiative_id/subtasks/weights", handlers.GetWeightSummary(engine))
	r.PUT("/api/initiatives/:initiative_id/subtasks", handlers.BulkUpdateSubtasks(engine))
	r.PUT("/api/initiatives/:initiative_id/subtasks/:subtask_id", handlers.UpdateSubtask(engine))
	r.DELETE("/api/initiatives/:initiative_id/subtasks/:subtask_id", handlers.DeleteSubtask(engine))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	port := os.Getenv("PORT")
	if port == "" {
		port = "9000"
	}
	if _, err := strconv.Atoi(port); err != nil {
		log.Fatalf("Invalid PORT environment variable: %s", port)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("port", port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-quit
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}
	log.Info("server exiting")
}
