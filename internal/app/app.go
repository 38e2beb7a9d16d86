package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/campusprint/internal/auth"
	"github.com/vladislavdragonenkov/campusprint/internal/eventbus"
	healthcheck "github.com/vladislavdragonenkov/campusprint/internal/health"
	"github.com/vladislavdragonenkov/campusprint/internal/httpapi"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
	"github.com/vladislavdragonenkov/campusprint/internal/realtime"
	"github.com/vladislavdragonenkov/campusprint/internal/service/notification"
	"github.com/vladislavdragonenkov/campusprint/internal/service/order"
	"github.com/vladislavdragonenkov/campusprint/internal/service/payment"
	"github.com/vladislavdragonenkov/campusprint/internal/service/shop"
	"github.com/vladislavdragonenkov/campusprint/internal/version"
	"github.com/vladislavdragonenkov/campusprint/internal/worker"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// RunAPI запускает REST API, websocket-шлюз, метрики и gRPC health.
// При брокере none в этом же процессе работают consumers очередей.
func RunAPI(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "api")
	if err := cfg.Validate(); err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	m := metrics.Default()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage(deps, logger)

	broker, err := initBroker(ctx, cfg, logger, cfg.Broker == BrokerNone)
	if err != nil {
		return err
	}
	defer broker.close(logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if broker.checker != nil {
		healthHandler.RegisterChecker("broker", broker.checker)
	}

	hub := realtime.NewHub(verifier,
		realtime.WithLogger(logger.WithField("layer", "realtime")),
		realtime.WithMetrics(m),
		realtime.WithSendBuffer(cfg.WSSendBuffer),
	)
	defer hub.Close()

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()

		bridge := realtime.NewRedisBridge(client, hub, realtime.WithBridgeLogger(logger.WithField("layer", "realtime-bridge")))
		healthHandler.RegisterChecker("redis", healthcheck.NewPingChecker("redis", dependencyPingTimeout, bridge.Ping).Optional())
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.WithError(err).Warn("realtime bridge stopped")
			}
		}()
	}

	bus := eventbus.New(eventbus.WithLogger(logger.WithField("layer", "eventbus")), eventbus.WithMetrics(m))
	publisher := queue.NewSafePublisher(broker.publisher,
		queue.WithSafeLogger(logger.WithField("layer", "queue")),
		queue.WithSafeMetrics(m),
	)
	notifier := notification.New(deps.users, deps.shops, deps.notifications, publisher,
		notification.WithEmitter(hub),
	)
	unsubscribe := notifier.Subscribe(bus)
	defer unsubscribe()

	orderService := order.New(deps.orders, deps.shops, deps.users, bus,
		order.WithMetrics(m),
		order.WithLocation(location),
		order.WithEmitter(hub),
	)
	logger.Warn("payment provider runs in sandbox mode")
	paymentService := payment.New(deps.payments, deps.orders, deps.users, payment.NewMockProvider(), bus,
		payment.WithEmitter(hub),
	)
	shopService := shop.New(deps.shops, bus)

	api := httpapi.NewServer(orderService, paymentService, shopService, deps.notifications, verifier,
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithRealtime(hub),
		httpapi.WithCallbackSecret(cfg.CallbackSecret),
	)

	errCh := make(chan error, 3)

	if broker.inProcess() {
		consumers, err := buildConsumers(cfg, broker.sources, m, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := worker.NewRunner(consumers...).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("in-process workers: %w", err)
			}
		}()
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcServer, healthServer, err := startGRPCHealth(cfg.GRPCHealthAddr, logger, errCh)
	if err != nil {
		return err
	}
	defer stopGRPC(grpcServer, healthServer, logger)

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("REST API слушает %s", lis.Addr())
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer shutdownHTTP(httpSrv, logger)

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем API")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// RunWorker обрабатывает очереди notifications, analytics и file-processing до отмены ctx.
func RunWorker(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "notification-worker")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Broker == BrokerNone {
		return errors.New("worker requires amqp or kafka broker")
	}

	m := metrics.Default()

	broker, err := initBroker(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer broker.close(logger)

	consumers, err := buildConsumers(cfg, broker.sources, m, logger)
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if broker.checker != nil {
		healthHandler.RegisterChecker("broker", broker.checker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	errCh := make(chan error, 2)
	grpcServer, healthServer, err := startGRPCHealth(cfg.GRPCHealthAddr, logger, errCh)
	if err != nil {
		return err
	}
	defer stopGRPC(grpcServer, healthServer, logger)

	runErr := make(chan error, 1)
	go func() {
		runErr <- worker.NewRunner(consumers...).Run(ctx)
	}()
	logger.WithField("queues", queue.Names()).Info("worker started")

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func closeStorage(deps *runtimeDependencies, logger *log.Entry) {
	if deps == nil || deps.closeFn == nil {
		return
	}
	if err := deps.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// startGRPCHealth поднимает grpc.health.v1 с reflection и prometheus-интерцепторами.
func startGRPCHealth(addr string, logger *log.Entry, errCh chan<- error) (*grpc.Server, *health.Server, error) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	go func() {
		logger.Infof("gRPC health слушает %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	return grpcServer, healthServer, nil
}

// stopGRPC переводит health в NOT_SERVING и останавливает сервер.
func stopGRPC(grpcServer *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	if grpcServer == nil {
		return
	}
	if healthServer != nil {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
