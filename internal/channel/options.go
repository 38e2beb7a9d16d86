package channel

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

// Option настраивает адаптер канала.
type Option func(*config)

type config struct {
	logger  *log.Entry
	metrics *metrics.Metrics
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func newConfig(name string, options []Option) config {
	var cfg config
	for _, option := range options {
		option(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "channel")
	}
	cfg.logger = cfg.logger.WithField("channel", name)
	if cfg.metrics == nil {
		cfg.metrics = metrics.Default()
	}
	return cfg
}
