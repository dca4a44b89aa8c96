package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/bookingflow/config"
	"github.com/Domenick1991/bookingflow/internal/bootstrap"
	"github.com/Domenick1991/bookingflow/internal/kafka"
	"github.com/Domenick1991/bookingflow/internal/logger"
	"github.com/Domenick1991/bookingflow/internal/service/payments"
	"github.com/Domenick1991/bookingflow/internal/service/sweeper"
	"golang.org/x/sync/errgroup"
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

	sw := sweeper.New(core.Inventory, core.Bookings,
		sweeper.WithInterval(cfg.Worker.SweepInterval()),
		sweeper.WithConcurrency(cfg.Worker.SweepConcurrency),
		sweeper.WithLogger(logg.WithField("component", "sweeper")),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sw.Run(ctx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.PaymentsTopic)
		defer consumer.Close()

		handler := payments.NewHandler(core.Bookings, logg.WithField("component", "payments"))
		g.Go(func() error {
			return consumer.Consume(ctx, handler.HandleMessage)
		})
	} else {
		logg.Warn("no kafka brokers configured, payment results are not consumed")
	}

	logg.Info("worker started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.WithError(err).Error("worker stopped")
		return
	}
	logg.Info("worker stopped")
}
