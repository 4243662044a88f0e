package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ipintel/internal/config"
	"ipintel/internal/handler"
	"ipintel/internal/metrics"
	"ipintel/internal/service"
	"ipintel/internal/utils"
)

func engineConfig(cfg *config.Config) service.Config {
	return service.Config{
		BaseURL:      cfg.UpstreamBaseURL,
		DefaultProxy: cfg.ProxyURL,
		Timeout:      cfg.QueryTimeout,
		MaxWorkers:   cfg.MaxWorkers,
	}
}

// NewServer wires the echo instance: middleware, JSON error shape and
// routes. Kept separate from main so tests can drive it directly.
func NewServer(cfg *config.Config, engine *service.Engine, probe *service.UpstreamProbe) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		message := http.StatusText(code)
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			}
		}
		_ = c.JSON(code, map[string]interface{}{
			"status":  "error",
			"message": message,
		})
	}

	h := handler.NewHandler(engine, cfg)
	h.Probe = probe

	api := e.Group("/api/ip")
	api.GET("/query", h.Query)
	api.POST("/batch-query", h.BatchQuery)
	api.GET("/health", h.Health)
	if cfg.EnableRDNS {
		api.GET("/rdns", h.RDNSLookup)
	}
	if cfg.EnableWhois {
		api.GET("/whois", h.WhoisLookup)
	}
	if cfg.EnableGeo {
		api.GET("/geo", h.GeoLookup)
	}

	e.GET("/ws", h.HandleWS)

	metricsRoute := e.Group("/metrics")
	if cfg.TrustedMetricsIPs != "" {
		metricsRoute.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if !utils.IsTrustedIP(c.RealIP(), cfg.TrustedMetricsIPs) {
					return echo.NewHTTPError(http.StatusForbidden, "metrics restricted")
				}
				return next(c)
			}
		})
	}
	metricsRoute.GET("", echo.WrapHandler(metrics.Handler()))

	return e
}

func main() {
	_ = godotenv.Load()
	utils.InitLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.Log.Fatal("invalid configuration", utils.Field("error", err.Error()))
	}

	// Child processes spawned by the process-mode pool run the worker
	// loop instead of the web stack.
	if os.Getenv(service.WorkerEnv) == "1" {
		service.RunWorker(os.Stdin, os.Stdout, engineConfig(cfg))
		return
	}

	engine := service.NewEngine(engineConfig(cfg))

	sched := service.NewScheduler(cfg.UpstreamBaseURL)
	sched.Start()

	e := NewServer(cfg, engine, sched.Probe)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			utils.Log.Fatal("server stopped", utils.Field("error", err.Error()))
		}
	}()

	// Graceful shutdown: stop accepting requests, then drain the
	// engine so in-flight queries finish.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		utils.Log.Error("server shutdown", utils.Field("error", err.Error()))
	}
	sched.Stop()
	engine.Shutdown()
}
