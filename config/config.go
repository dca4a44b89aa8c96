package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	RefundsTopic       string   `yaml:"refunds_topic"`
	PaymentsTopic      string   `yaml:"payments_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	HoldTTLMinutes           int    `yaml:"hold_ttl_minutes"`
	AvailabilityCacheSeconds int    `yaml:"availability_cache_ttl_seconds"`
	DistributedLocks         bool   `yaml:"distributed_locks"`
	LockLeaseSeconds         int    `yaml:"lock_lease_seconds"`
	DefaultCurrency          string `yaml:"default_currency"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

func (b BookingConfig) AvailabilityCacheTTL() time.Duration {
	return time.Duration(b.AvailabilityCacheSeconds) * time.Second
}

func (b BookingConfig) LockLease() time.Duration {
	return time.Duration(b.LockLeaseSeconds) * time.Second
}

type WorkerConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	SweepBatchSize       int `yaml:"sweep_batch_size"`
	SweepConcurrency     int `yaml:"sweep_concurrency"`
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.SweepIntervalSeconds) * time.Second
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking-events"
	}
	if c.Kafka.RefundsTopic == "" {
		c.Kafka.RefundsTopic = "booking-refunds"
	}
	if c.Kafka.PaymentsTopic == "" {
		c.Kafka.PaymentsTopic = "payment-results"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "booking-worker"
	}
	if c.Booking.HoldTTLMinutes == 0 {
		c.Booking.HoldTTLMinutes = 15
	}
	if c.Booking.AvailabilityCacheSeconds == 0 {
		c.Booking.AvailabilityCacheSeconds = 5
	}
	if c.Booking.LockLeaseSeconds == 0 {
		c.Booking.LockLeaseSeconds = 30
	}
	if c.Booking.DefaultCurrency == "" {
		c.Booking.DefaultCurrency = "USD"
	}
	if c.Worker.SweepIntervalSeconds == 0 {
		c.Worker.SweepIntervalSeconds = 60
	}
	if c.Worker.SweepBatchSize == 0 {
		c.Worker.SweepBatchSize = 500
	}
	if c.Worker.SweepConcurrency == 0 {
		c.Worker.SweepConcurrency = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Booking.HoldTTLMinutes < 0 {
		errs = append(errs, errors.New("booking.hold_ttl_minutes must be positive"))
	}
	if c.Worker.SweepIntervalSeconds < 0 {
		errs = append(errs, errors.New("worker.sweep_interval_seconds must be positive"))
	}
	if c.Worker.SweepConcurrency < 0 {
		errs = append(errs, errors.New("worker.sweep_concurrency must be positive"))
	}
	if c.Booking.DistributedLocks && !c.Redis.Enabled() {
		errs = append(errs, errors.New("booking.distributed_locks requires redis.addr"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
