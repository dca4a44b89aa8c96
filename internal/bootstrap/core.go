package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/bookingflow/config"
	"github.com/Domenick1991/bookingflow/internal/cache"
	"github.com/Domenick1991/bookingflow/internal/clock"
	"github.com/Domenick1991/bookingflow/internal/kafka"
	"github.com/Domenick1991/bookingflow/internal/repository"
	"github.com/Domenick1991/bookingflow/internal/service/booking"
	"github.com/Domenick1991/bookingflow/internal/service/history"
	"github.com/Domenick1991/bookingflow/internal/service/inventory"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Core is the wiring shared by the API server and the worker.
type Core struct {
	Pool      *pgxpool.Pool
	Redis     *cache.RedisCache
	Producer  *kafka.Producer
	Inventory *inventory.Manager
	History   *history.Ledger
	Bookings  *booking.BookingService
}

func NewCore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Core, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	core := &Core{Pool: pool}

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			core.Close()
			return nil, err
		}
		log.Info("database schema applied")
	}

	tx := repository.NewTxManager(pool)
	clk := clock.Real{}

	invOpts := []inventory.ManagerOption{
		inventory.WithClock(clk),
		inventory.WithHoldTTL(cfg.Booking.HoldTTL()),
		inventory.WithScanLimit(cfg.Worker.SweepBatchSize),
		inventory.WithLogger(log.WithField("component", "inventory")),
	}
	bookingOpts := []booking.BookingServiceOption{
		booking.WithClock(clk),
		booking.WithHoldTTL(cfg.Booking.HoldTTL()),
		booking.WithDefaultCurrency(cfg.Booking.DefaultCurrency),
		booking.WithLogger(log.WithField("component", "booking")),
	}

	if cfg.Redis.Enabled() {
		core.Redis = cache.NewRedisCache(cfg.Redis, cfg.Booking.AvailabilityCacheTTL(), cfg.Booking.LockLease())
		if err := core.Redis.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unreachable, availability cache will miss")
		}
		invOpts = append(invOpts, inventory.WithCache(core.Redis))
		if cfg.Booking.DistributedLocks {
			bookingOpts = append(bookingOpts, booking.WithLocker(core.Redis))
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		core.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log.WithField("component", "kafka"))
		bookingOpts = append(bookingOpts,
			booking.WithProducer(core.Producer, cfg.Kafka.BookingEventsTopic),
			booking.WithRefundsTopic(cfg.Kafka.RefundsTopic),
		)
	}

	core.Inventory = inventory.NewManager(tx, repository.NewInventoryRepository(pool), invOpts...)
	core.History = history.NewLedger(repository.NewHistoryRepository(pool), clk)
	core.Bookings = booking.NewBookingService(tx, repository.NewBookingRepository(pool), core.Inventory, core.History, bookingOpts...)
	return core, nil
}

func (c *Core) Close() {
	if c.Producer != nil {
		_ = c.Producer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
