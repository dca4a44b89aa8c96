package logger

import (
	"fmt"
	"os"

	"github.com/Domenick1991/bookingflow/config"
	"github.com/sirupsen/logrus"
)

func New(cfg config.LogConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
