package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	brokerAMQP  = "amqp"
	brokerKafka = "kafka"
	allQueues   = "all"
)

type config struct {
	broker      string
	amqpURL     string
	brokers     []string
	queues      []string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		queueRaw   string
		cfg        config
	)

	flag.StringVar(&cfg.broker, "broker", "", "broker kind: amqp|kafka (fallback: CAMPUSPRINT_BROKER)")
	flag.StringVar(&cfg.amqpURL, "amqp-url", "", "RabbitMQ URL (fallback: CAMPUSPRINT_AMQP_URL)")
	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: CAMPUSPRINT_KAFKA_BROKERS)")
	flag.StringVar(&queueRaw, "queue", allQueues, "queue whose DLQ is replayed: notifications|analytics|file-processing|all")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to replay per queue")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "kafka: scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "kafka: idle timeout per partition")
	flag.Parse()

	cfg.broker = strings.ToLower(strings.TrimSpace(firstNonEmpty(cfg.broker, os.Getenv("CAMPUSPRINT_BROKER"))))
	cfg.amqpURL = strings.TrimSpace(firstNonEmpty(cfg.amqpURL, os.Getenv("CAMPUSPRINT_AMQP_URL")))
	cfg.brokers = parseBrokers(firstNonEmpty(brokersRaw, os.Getenv("CAMPUSPRINT_KAFKA_BROKERS")))

	queues, err := parseQueues(queueRaw)
	if err != nil {
		return config{}, err
	}
	cfg.queues = queues

	switch cfg.broker {
	case brokerAMQP:
		if cfg.amqpURL == "" {
			return config{}, fmt.Errorf("amqp url is required (-amqp-url or CAMPUSPRINT_AMQP_URL)")
		}
	case brokerKafka:
		if len(cfg.brokers) == 0 {
			return config{}, fmt.Errorf("kafka brokers are required (-brokers or CAMPUSPRINT_KAFKA_BROKERS)")
		}
	default:
		return config{}, fmt.Errorf("unsupported broker %q (use amqp|kafka)", cfg.broker)
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseQueues(raw string) ([]string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" || name == allQueues {
		return queue.Names(), nil
	}
	for _, known := range queue.Names() {
		if name == known {
			return []string{name}, nil
		}
	}
	return nil, fmt.Errorf("unknown queue %q", raw)
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"broker":  cfg.broker,
		"queues":  cfg.queues,
		"limit":   cfg.limit,
		"execute": cfg.execute,
	}).Info("starting dlq replay")

	switch cfg.broker {
	case brokerAMQP:
		return runAMQP(ctx, cfg)
	case brokerKafka:
		return runKafka(ctx, cfg)
	default:
		return fmt.Errorf("unsupported broker %q", cfg.broker)
	}
}

func mode(execute bool) string {
	if execute {
		return "execute"
	}
	return "dry-run"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
