package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/campusprint/internal/health"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/amqp"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
	"github.com/vladislavdragonenkov/campusprint/internal/storage/memory"
	"github.com/vladislavdragonenkov/campusprint/internal/storage/postgres"
)

const dependencyPingTimeout = 2 * time.Second

// runtimeDependencies содержит репозитории выбранного хранилища.
type runtimeDependencies struct {
	orders        domain.OrderRepository
	shops         domain.ShopRepository
	users         domain.UserRepository
	payments      domain.PaymentRepository
	notifications domain.NotificationRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return &runtimeDependencies{
			orders:        memory.NewOrderRepository(),
			shops:         memory.NewShopRepository(),
			users:         memory.NewUserRepository(),
			payments:      memory.NewPaymentRepository(),
			notifications: memory.NewNotificationRepository(),
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.Info("postgres storage initialized")
		return &runtimeDependencies{
			orders:         postgres.NewOrderRepository(store),
			shops:          postgres.NewShopRepository(store),
			users:          postgres.NewUserRepository(store),
			payments:       postgres.NewPaymentRepository(store),
			notifications:  postgres.NewNotificationRepository(store),
			storageChecker: healthcheck.NewPingChecker("postgres", dependencyPingTimeout, store.Ping),
			closeFn:        store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// brokerDependencies объединяет публикацию в очереди и источники сообщений воркера.
type brokerDependencies struct {
	publisher queue.Publisher
	sources   map[string]queue.Source
	memory    *queue.MemoryBroker
	checker   healthcheck.Checker
	closeFn   func() error
}

// inProcess сообщает, что очереди живут в памяти процесса API.
func (b *brokerDependencies) inProcess() bool {
	return b.memory != nil
}

func (b *brokerDependencies) close(logger *log.Entry) {
	if b == nil || b.closeFn == nil {
		return
	}
	if err := b.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close broker")
		return
	}
	logger.Info("broker closed")
}

// initBroker подключается к брокеру. withSources открывает по источнику на каждую очередь;
// для kafka источники сразу запускаются и останавливаются в closeFn.
func initBroker(ctx context.Context, cfg Config, logger *log.Entry, withSources bool) (*brokerDependencies, error) {
	switch cfg.Broker {
	case "", BrokerNone:
		broker := queue.NewMemoryBroker()
		deps := &brokerDependencies{publisher: broker, memory: broker, closeFn: broker.Close}
		if withSources {
			deps.sources = make(map[string]queue.Source, len(queue.Names()))
			for _, name := range queue.Names() {
				deps.sources[name] = broker.Source(name)
			}
		}
		logger.Info("using in-process queues")
		return deps, nil

	case BrokerAMQP:
		client, err := amqp.Connect(ctx, cfg.AMQPURL,
			amqp.WithLogger(logger.WithField("broker", BrokerAMQP)),
			amqp.WithQueues(queue.Names()...),
		)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		deps := &brokerDependencies{
			publisher: client,
			checker:   healthcheck.NewPingChecker("amqp", dependencyPingTimeout, client.Ping),
		}
		var sources []*amqp.Source
		if withSources {
			deps.sources = make(map[string]queue.Source, len(queue.Names()))
			for _, name := range queue.Names() {
				source := client.NewSource(name)
				sources = append(sources, source)
				deps.sources[name] = source
			}
		}
		deps.closeFn = func() error {
			var errs []error
			for _, source := range sources {
				errs = append(errs, source.Close())
			}
			errs = append(errs, client.Close())
			return errors.Join(errs...)
		}
		logger.Info("amqp broker connected")
		return deps, nil

	case BrokerKafka:
		brokers := cfg.KafkaBrokerList()
		producer, err := kafka.NewProducer(brokers,
			kafka.WithClientID(cfg.KafkaGroupID),
			kafka.WithProducerLogger(logger.WithField("broker", BrokerKafka)),
		)
		if err != nil {
			return nil, err
		}
		deps := &brokerDependencies{publisher: producer}
		var sources []*kafka.Source
		if withSources {
			deps.sources = make(map[string]queue.Source, len(queue.Names()))
			for _, name := range queue.Names() {
				source, err := kafka.NewSource(brokers, cfg.KafkaGroupID, name, producer)
				if err != nil {
					for _, started := range sources {
						_ = started.Stop()
					}
					_ = producer.Close()
					return nil, err
				}
				source.Start(ctx)
				sources = append(sources, source)
				deps.sources[name] = source
			}
		}
		deps.closeFn = func() error {
			var errs []error
			for _, source := range sources {
				errs = append(errs, source.Stop())
			}
			errs = append(errs, producer.Close())
			return errors.Join(errs...)
		}
		logger.WithField("brokers", brokers).Info("kafka producer initialized")
		return deps, nil

	default:
		return nil, fmt.Errorf("unsupported broker %q", cfg.Broker)
	}
}
