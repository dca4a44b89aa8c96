package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/bookingflow/api"
	"github.com/Domenick1991/bookingflow/config"
	"github.com/Domenick1991/bookingflow/internal/bootstrap"
	"github.com/Domenick1991/bookingflow/internal/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.NewCore(ctx, cfg, logg)
	if err != nil {
		logg.WithError(err).Fatal("init core")
	}
	defer core.Close()

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(
		api.NewBookingHandler(core.Bookings),
		api.NewInventoryHandler(core.Inventory),
		api.RouterConfig{SwaggerDir: cfg.HTTP.SwaggerDir, Log: logg.WithField("component", "http")},
	)

	if err := bootstrap.Run(ctx, cfg, router, core.Pool, logg); err != nil {
		logg.WithError(err).Error("server error")
		return
	}
}
