package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bank-reconciliation-backend/internal/audit"
	"bank-reconciliation-backend/internal/config"
	handler "bank-reconciliation-backend/internal/handlers"
	"bank-reconciliation-backend/internal/jobs"
	"bank-reconciliation-backend/internal/ledger"
	"bank-reconciliation-backend/internal/logger"
	"bank-reconciliation-backend/internal/routes"
	"bank-reconciliation-backend/internal/services/importer"
	"bank-reconciliation-backend/internal/services/matching"
	"bank-reconciliation-backend/internal/services/reconciliation"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: logger.Format(cfg.LogFormat)})
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := config.Migrate(db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	matchCfg := matching.NewMatchingConfig(cfg.AmountTolerance, cfg.DateWindowDays, cfg.MaxCandidates)
	if err := matchCfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid matching config")
	}

	sink := audit.Multi{audit.NewGormSink(db), audit.NewLogSink(log)}
	engine := matching.NewEngine(db, matching.DBSources(db), matchCfg, sink, log)
	h := handler.NewReconciliationHandler(
		importer.NewService(db, sink, log),
		engine,
		reconciliation.NewService(db, ledger.NewLogPoster(log), sink, log),
		log,
	)

	scheduler, err := jobs.StartAutoMatchScheduler(jobs.AutoMatchConfig{
		Schedule: cfg.AutoMatchCron,
		TimeZone: cfg.AutoMatchTimezone,
	}, jobs.NewAutoMatchJob(db, engine, log))
	if err != nil {
		log.WithError(err).Fatal("start auto-match scheduler")
	}

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", handler.ActorHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, h)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown")
	}
}
