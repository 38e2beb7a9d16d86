package app

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/channel"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
	"github.com/vladislavdragonenkov/campusprint/internal/worker"
)

const (
	providerMaxFailures  = 5
	providerResetTimeout = 30 * time.Second
)

// channelProviders выбирает HTTP-провайдеров SMS и email за circuit breaker; без адреса сообщения только логируются.
func channelProviders(cfg Config, logger *log.Entry) (channel.SMSProvider, channel.EmailProvider) {
	fallback := channel.NewLogProvider(logger.WithField("provider", "log"))

	var sms channel.SMSProvider = fallback
	if cfg.SMSEndpoint != "" {
		sms = channel.GuardSMSProvider(channel.NewHTTPSMSProvider(channel.HTTPProviderConfig{
			Endpoint: cfg.SMSEndpoint,
			APIKey:   cfg.SMSAPIKey,
			Sender:   cfg.SMSSender,
			Timeout:  cfg.ProviderTimeout,
		}, nil), channel.NewCircuitBreaker(providerMaxFailures, providerResetTimeout, logger.WithField("provider", "sms")))
	} else {
		logger.Warn("sms provider is not configured, messages are only logged")
	}

	var email channel.EmailProvider = fallback
	if cfg.EmailEndpoint != "" {
		email = channel.GuardEmailProvider(channel.NewHTTPEmailProvider(channel.HTTPProviderConfig{
			Endpoint: cfg.EmailEndpoint,
			APIKey:   cfg.EmailAPIKey,
			Sender:   cfg.EmailSender,
			Timeout:  cfg.ProviderTimeout,
		}, nil), channel.NewCircuitBreaker(providerMaxFailures, providerResetTimeout, logger.WithField("provider", "email")))
	} else {
		logger.Warn("email provider is not configured, messages are only logged")
	}
	return sms, email
}

// buildConsumers создаёт по consumer на каждую рабочую очередь.
func buildConsumers(cfg Config, sources map[string]queue.Source, m *metrics.Metrics, logger *log.Entry) ([]*queue.Consumer, error) {
	smsProvider, emailProvider := channelProviders(cfg, logger)
	channelOptions := []channel.Option{channel.WithLogger(logger.WithField("layer", "channel")), channel.WithMetrics(m)}

	emailAdapter, err := channel.NewEmailAdapter(emailProvider, channelOptions...)
	if err != nil {
		return nil, fmt.Errorf("init email adapter: %w", err)
	}
	notifications := worker.NewNotificationHandler(
		channel.NewSMSAdapter(smsProvider, channelOptions...),
		emailAdapter,
		channel.NewPushAdapter(channelOptions...),
		logger.WithField("queue", queue.Notifications),
	)
	analytics := worker.NewAnalyticsHandler(m, logger.WithField("queue", queue.Analytics))
	files := worker.NewFileProcessingHandler(worker.LogDocumentProcessor{Logger: logger.WithField("queue", queue.FileProcessing)})

	handlers := map[string]queue.Handler{
		queue.Notifications:  notifications.Handle,
		queue.Analytics:      analytics.Handle,
		queue.FileProcessing: files.Handle,
	}

	consumers := make([]*queue.Consumer, 0, len(handlers))
	for _, name := range queue.Names() {
		source, ok := sources[name]
		if !ok {
			return nil, fmt.Errorf("no source for queue %s", name)
		}
		consumers = append(consumers, queue.NewConsumer(name, source, handlers[name],
			queue.WithConsumerLogger(logger.WithField("queue", name)),
			queue.WithConsumerMetrics(m),
		))
	}
	return consumers, nil
}
