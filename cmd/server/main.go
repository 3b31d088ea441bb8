package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"invoice-reconciliation-backend/internal/config"
	"invoice-reconciliation-backend/internal/logging"
	"invoice-reconciliation-backend/internal/models"
	"invoice-reconciliation-backend/internal/provider"
	"invoice-reconciliation-backend/internal/repository"
	"invoice-reconciliation-backend/internal/routes"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, relying on system env")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("init database")
	}

	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.InvoiceReference{},
		&models.MatchDecision{},
		&models.ReviewTask{},
	); err != nil {
		log.WithError(err).Fatal("migrate schema")
	}
	if err := repository.EnsureActiveDecisionIndex(db); err != nil {
		log.WithError(err).Fatal("create active decision index")
	}

	whmcs := provider.NewWHMCSClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		cfg.Provider.Timeout,
		provider.RetryPolicy{
			MaxAttempts: cfg.Provider.Retry.MaxAttempts,
			BaseDelay:   cfg.Provider.Retry.BaseDelay,
			MaxDelay:    cfg.Provider.Retry.MaxDelay,
		},
		log,
	)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, whmcs, cfg.Matching, log)

	log.WithField("addr", cfg.Server.Addr).Info("starting server")
	if err := r.Run(cfg.Server.Addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
