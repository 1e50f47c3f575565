// Package app wires configuration, infrastructure, the data center, and the
// HTTP surface into one process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quant-engine/api"
	"quant-engine/internal/config"
	"quant-engine/internal/data"
	"quant-engine/internal/infrastructure"
	"quant-engine/internal/push"
)

// App holds the process-wide dependencies.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	DB         *pgxpool.Pool
	NC         *nats.Conn
	JS         nats.JetStreamContext
	DataCenter *data.DataCenter
	Gateway    *push.Gateway
	HTTPServer *http.Server
}

func New(overrides map[string]any) (*App, error) {
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	infrastructure.Init(cfg.LogLevel)
	return &App{
		Config: cfg,
		Logger: infrastructure.Logger,
	}, nil
}

// Init connects the external dependencies. Postgres is optional: without a
// DSN the engine runs purely against exchange REST data.
func (a *App) Init(ctx context.Context) error {
	if a.Config.DBDSN != "" {
		pool, err := pgxpool.Connect(ctx, a.Config.DBDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.DB = pool
	}

	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	a.DataCenter = a.buildDataCenter()
	a.Gateway = push.NewGateway(js, a.Logger)
	return nil
}

// buildDataCenter registers every configured bar source: Binance spot and
// futures REST, plus the local Postgres archive when a pool is present.
func (a *App) buildDataCenter() *data.DataCenter {
	opts := data.DefaultCenterOptions()
	opts.EnableCache = a.Config.DataCenter.EnableCache
	opts.CacheTTL = time.Duration(a.Config.DataCenter.CacheTTLSeconds * float64(time.Second))
	opts.MaxRetries = a.Config.DataCenter.MaxRetries
	opts.RetryDelay = time.Duration(a.Config.DataCenter.RetryDelaySeconds * float64(time.Second))

	dc := data.NewDataCenter(opts, a.Logger)
	timeout := time.Duration(a.Config.DataCenter.RequestTimeoutSeconds * float64(time.Second))
	dc.Register("binance", data.MarketSpot,
		data.NewBinanceAdapter(data.MarketSpot, a.Config.DataCenter.BaseURL, timeout, a.Logger))
	dc.Register("binance", data.MarketFutures,
		data.NewBinanceAdapter(data.MarketFutures, "", timeout, a.Logger))
	if a.DB != nil {
		dc.Register("archive", data.MarketSpot, data.NewPostgresSource(a.DB))
	}
	return dc
}

// Run starts the HTTP server and blocks until a shutdown signal.
func (a *App) Run(ctx context.Context) error {
	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.NC.Close()
	a.DataCenter.Close()
	if a.DB != nil {
		a.DB.Close()
	}
	return nil
}

func (a *App) setupRouter() *gin.Engine {
	if !a.Config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	publisher := push.NewPublisher(a.JS, a.Logger)
	handler := api.NewHandler(a.Config, a.DataCenter, publisher, a.Logger)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/klines/:symbol", handler.GetKLines)
		v1.GET("/ticker/:symbol", handler.GetTicker)
		v1.GET("/stats", handler.Stats)
		v1.POST("/backtest", handler.RunBacktest)
		v1.GET("/backtest/:id", handler.GetBacktest)
		v1.DELETE("/backtest/:id", handler.CancelBacktest)
	}

	r.GET("/ws", func(c *gin.Context) {
		a.Gateway.ServeHTTP(c.Writer, c.Request)
	})

	return r
}
