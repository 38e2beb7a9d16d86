package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/app"
	"github.com/vladislavdragonenkov/campusprint/internal/version"
)

// setupLogger настраивает формат логов; неизвестный уровень заменяется на info.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

func main() {
	cfg, warnings := app.LoadConfigFromEnv()
	setupLogger(cfg.LogLevel)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Current().Fields()).WithFields(log.Fields{
		"broker":       cfg.Broker,
		"kafka_group":  cfg.KafkaGroupID,
		"metrics_addr": cfg.MetricsAddr,
		"sms_provider": cfg.SMSEndpoint != "",
	}).Info("запускаем notification-worker")

	if err := app.RunWorker(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("notification-worker остановлен")
}
