package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/competitor/api"
	"github.com/seo-optimizer/competitor/config"
	"github.com/seo-optimizer/competitor/crawler"
	"github.com/seo-optimizer/competitor/fetcher"
	"github.com/seo-optimizer/competitor/logging"
	"github.com/seo-optimizer/competitor/middleware"
	"github.com/seo-optimizer/competitor/report"
	"github.com/seo-optimizer/competitor/stats"
)

// statsRetainMonths is how much usage history survives a restart
const statsRetainMonths = 12

func main() {
	envFile := config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up logging")
	}
	if !envFile {
		log.Debug("No .env file found, using environment variables")
	}
	gin.SetMode(cfg.Server.GinMode)

	usage, err := stats.NewStorage(cfg.DataDir, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open statistics storage")
	}
	usage.Cleanup(statsRetainMonths)

	f := fetcher.New(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Timeout:      cfg.Crawl.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
	})
	c := crawler.New(f,
		crawler.WithLogger(log),
		crawler.WithUserAgent(cfg.Crawl.UserAgent),
		crawler.WithRobotsClient(f.Client()),
	)
	svc := report.NewService(c, cfg.Crawl.CrawlOptions(),
		report.WithLogger(log),
		report.WithUsage(usage),
		report.WithTopKeywords(cfg.Report.TopKeywords),
	)

	h := api.NewHandler(svc, usage, api.Settings{
		DefaultMaxDepth: cfg.Crawl.MaxDepth,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		DevMode:         cfg.Server.DevMode,
	}, log)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	router := api.NewRouter(h,
		middleware.ErrorHandler(log),
		middleware.CORS(),
		limiter.RateLimit(),
		middleware.RequestLogger(log, usage),
	)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithFields(logrus.Fields{
			"addr":     srv.Addr,
			"gin_mode": cfg.Server.GinMode,
			"dev_mode": cfg.Server.DevMode,
		}).Infof("Server starting on http://localhost:%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Forced shutdown")
	}
	usage.Shutdown()
}
