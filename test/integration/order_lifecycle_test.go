package integration

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/campusprint/internal/channel"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/eventbus"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
	"github.com/vladislavdragonenkov/campusprint/internal/service/notification"
	"github.com/vladislavdragonenkov/campusprint/internal/service/order"
	"github.com/vladislavdragonenkov/campusprint/internal/service/payment"
	"github.com/vladislavdragonenkov/campusprint/internal/service/shop"
	"github.com/vladislavdragonenkov/campusprint/internal/storage/memory"
	"github.com/vladislavdragonenkov/campusprint/internal/worker"
)

const (
	studentID    = "student-1"
	studentPhone = "+919800000001"
	studentEmail = "asha@campus.edu.in"
	ownerID      = "owner-1"
)

type recorder struct {
	mu     sync.Mutex
	sms    []string
	emails []string
	files  []worker.FileJob
}

func (o *recorder) SendSMS(_ context.Context, to, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sms = append(o.sms, to+": "+body)
	return nil
}

func (o *recorder) SendEmail(_ context.Context, to, subject, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emails = append(o.emails, to+": "+subject)
	return nil
}

func (o *recorder) Process(_ context.Context, job worker.FileJob) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files = append(o.files, job)
	return nil
}

func (o *recorder) counts() (sms, emails, files int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sms), len(o.emails), len(o.files)
}

func (o *recorder) smsTo(phone string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, msg := range o.sms {
		if strings.HasPrefix(msg, phone+": ") {
			out = append(out, msg)
		}
	}
	return out
}

// OrderLifecycleTestSuite прогоняет заказ через сервисы, in-process очереди и worker.
type OrderLifecycleTestSuite struct {
	suite.Suite

	orders        *order.Service
	payments      *payment.Service
	shops         *shop.Service
	notifications domain.NotificationRepository
	provider      *payment.MockProvider
	broker        *queue.MemoryBroker
	delivered     *recorder
	shopID        string

	cancel context.CancelFunc
	done   chan error
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	ctx := context.Background()
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	orderRepo := memory.NewOrderRepository()
	shopRepo := memory.NewShopRepository()
	userRepo := memory.NewUserRepository()
	suite.notifications = memory.NewNotificationRepository()
	suite.Require().NoError(userRepo.Create(ctx, domain.User{ID: studentID, Name: "Asha", Phone: studentPhone, Email: studentEmail, Role: domain.UserRoleStudent}))
	suite.Require().NoError(userRepo.Create(ctx, domain.User{ID: ownerID, Name: "Ravi", Email: "ravi@copyshop.in", Role: domain.UserRoleShopOwner}))

	suite.broker = queue.NewMemoryBroker()
	bus := eventbus.New(eventbus.WithLogger(logger), eventbus.WithMetrics(m))
	notifier := notification.New(userRepo, shopRepo, suite.notifications,
		queue.NewSafePublisher(suite.broker, queue.WithSafeLogger(logger), queue.WithSafeMetrics(m)),
		notification.WithLogger(logger),
	)
	notifier.Subscribe(bus)

	suite.provider = payment.NewMockProvider()
	suite.orders = order.New(orderRepo, shopRepo, userRepo, bus,
		order.WithLogger(logger),
		order.WithMetrics(m),
		order.WithClock(func() time.Time { return time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC) }),
	)
	suite.payments = payment.New(memory.NewPaymentRepository(), orderRepo, userRepo, suite.provider, bus, payment.WithLogger(logger))
	suite.shops = shop.New(shopRepo, bus, shop.WithLogger(logger))

	suite.delivered = &recorder{}
	channelOptions := []channel.Option{channel.WithLogger(logger), channel.WithMetrics(m)}
	emailAdapter, err := channel.NewEmailAdapter(suite.delivered, channelOptions...)
	suite.Require().NoError(err)
	handlers := map[string]queue.Handler{
		queue.Notifications: worker.NewNotificationHandler(
			channel.NewSMSAdapter(suite.delivered, channelOptions...),
			emailAdapter,
			channel.NewPushAdapter(channelOptions...),
			logger,
		).Handle,
		queue.Analytics:      worker.NewAnalyticsHandler(m, logger).Handle,
		queue.FileProcessing: worker.NewFileProcessingHandler(suite.delivered).Handle,
	}
	consumers := make([]*queue.Consumer, 0, len(handlers))
	for _, name := range queue.Names() {
		consumers = append(consumers, queue.NewConsumer(name, suite.broker.Source(name), handlers[name],
			queue.WithConsumerLogger(logger), queue.WithConsumerMetrics(m)))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.done = make(chan error, 1)
	go func() { suite.done <- worker.NewRunner(consumers...).Run(runCtx) }()

	registered, err := suite.shops.Register(ctx, shop.RegisterInput{
		OwnerID: ownerID,
		Name:    "Campus Copy",
		Lat:     12.9716,
		Lng:     77.5946,
		Rates: domain.Rates{
			BWSingle:    decimal.RequireFromString("1.00"),
			BWDouble:    decimal.RequireFromString("1.50"),
			ColorSingle: decimal.RequireFromString("5.00"),
			ColorDouble: decimal.RequireFromString("8.00"),
			Binding:     decimal.RequireFromString("25.00"),
		},
	})
	suite.Require().NoError(err)
	suite.shopID = registered.ID
}

func (suite *OrderLifecycleTestSuite) TearDownTest() {
	suite.cancel()
	<-suite.done
	_ = suite.broker.Close()
}

func (suite *OrderLifecycleTestSuite) waitForDrain() {
	suite.Require().Eventually(func() bool {
		for _, name := range queue.Names() {
			if suite.broker.Len(name) != 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "queues were not drained")
}

func (suite *OrderLifecycleTestSuite) createOrder(method domain.PaymentMethod, fileKey string) domain.Order {
	created, breakdown, err := suite.orders.Create(context.Background(), order.CreateInput{
		UserID:        studentID,
		ShopID:        suite.shopID,
		UserLat:       12.9716,
		UserLng:       77.5946,
		PrintConfig:   domain.PrintConfig{Pages: 20, Copies: 1},
		PaymentMethod: method,
		FileKey:       fileKey,
	})
	suite.Require().NoError(err)
	suite.Require().Equal(domain.OrderStatusPending, created.Status)
	suite.Require().True(created.TotalCost.Equal(breakdown.Total))
	return created
}

func (suite *OrderLifecycleTestSuite) transition(orderID string, status domain.OrderStatus, reason string) domain.Order {
	updated, err := suite.orders.UpdateStatus(context.Background(), order.UpdateStatusInput{
		OrderID:      orderID,
		TargetStatus: status,
		ActorID:      ownerID,
		Reason:       reason,
	})
	suite.Require().NoError(err)
	suite.Require().Equal(status, updated.Status)
	return updated
}

func (suite *OrderLifecycleTestSuite) TestOnlineOrderLifecycle() {
	ctx := context.Background()
	created := suite.createOrder(domain.PaymentMethodOnline, "uploads/thesis.pdf")

	pending, err := suite.payments.Initiate(ctx, created.ID, studentID)
	suite.Require().NoError(err)
	suite.Require().Equal(domain.PaymentStatusPending, pending.Status)

	paid, err := suite.payments.Confirm(ctx, payment.ConfirmInput{
		ProviderOrderID:   pending.ProviderOrderID,
		ProviderPaymentID: "pay_test_1",
		Success:           true,
	})
	suite.Require().NoError(err)
	suite.Require().Equal(domain.PaymentStatusSuccess, paid.Status)

	suite.transition(created.ID, domain.OrderStatusAccepted, "")
	suite.transition(created.ID, domain.OrderStatusReady, "")
	suite.transition(created.ID, domain.OrderStatusCompleted, "")

	final, err := suite.orders.Get(ctx, created.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusCompleted, final.Status)
	suite.Equal(domain.PaymentStatusSuccess, final.PaymentStatus)

	suite.waitForDrain()
	suite.Require().Eventually(func() bool {
		sms, emails, files := suite.delivered.counts()
		// SMS: placed, paid, accepted, ready. Email: welcome, placed, paid, ready, completed.
		return sms == 4 && emails == 5 && files == 1
	}, 2*time.Second, 10*time.Millisecond)

	ready := suite.delivered.smsTo(studentPhone)
	suite.Require().Len(ready, 4)
	suite.Contains(ready[len(ready)-1], "is ready for pickup")

	stored, err := suite.notifications.ListByUser(ctx, studentID, 0)
	suite.Require().NoError(err)
	suite.Len(stored, 5)
	for _, n := range stored {
		suite.Equal(created.ID, n.OrderID)
	}

	suite.Zero(suite.broker.Len(queue.DLQName(queue.Notifications)))
}

func (suite *OrderLifecycleTestSuite) TestCashOrderCancelledWithReason() {
	ctx := context.Background()
	created := suite.createOrder(domain.PaymentMethodCash, "")

	_, err := suite.payments.Initiate(ctx, created.ID, studentID)
	var validation *domain.ValidationError
	suite.Require().ErrorAs(err, &validation, "cash orders cannot be paid online")

	suite.transition(created.ID, domain.OrderStatusCancelled, "printer jammed")

	_, err = suite.orders.UpdateStatus(ctx, order.UpdateStatusInput{
		OrderID:      created.ID,
		TargetStatus: domain.OrderStatusAccepted,
		ActorID:      ownerID,
	})
	var invalid *domain.InvalidTransitionError
	suite.Require().ErrorAs(err, &invalid)
	suite.Equal(domain.OrderStatusCancelled, invalid.From)

	suite.waitForDrain()
	suite.Require().Eventually(func() bool {
		return len(suite.delivered.smsTo(studentPhone)) == 2
	}, 2*time.Second, 10*time.Millisecond)
	suite.Contains(suite.delivered.smsTo(studentPhone)[1], "printer jammed")

	_, _, files := suite.delivered.counts()
	suite.Zero(files, "orders without file key produce no file jobs")
}

func (suite *OrderLifecycleTestSuite) TestStudentCannotAdvanceOrder() {
	created := suite.createOrder(domain.PaymentMethodOnline, "")

	_, err := suite.orders.UpdateStatus(context.Background(), order.UpdateStatusInput{
		OrderID:      created.ID,
		TargetStatus: domain.OrderStatusAccepted,
		ActorID:      studentID,
	})
	var authErr *domain.AuthorizationError
	suite.Require().ErrorAs(err, &authErr)

	current, err := suite.orders.Get(context.Background(), created.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusPending, current.Status)
}

func (suite *OrderLifecycleTestSuite) TestMalformedMessageGoesToDLQ() {
	suite.Require().NoError(suite.broker.PublishRaw(queue.Notifications, []byte(`{"eventType":"ORDER_SHIPPED","payload":{}}`)))
	created := suite.createOrder(domain.PaymentMethodCash, "")

	suite.waitForDrain()
	suite.Require().Eventually(func() bool {
		return suite.broker.Len(queue.DLQName(queue.Notifications)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	suite.Require().Eventually(func() bool {
		for _, msg := range suite.delivered.smsTo(studentPhone) {
			if strings.Contains(msg, created.ID[:8]) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "valid messages keep flowing after a poisoned one")
}

func TestOrderLifecycleSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration suite skipped in short mode")
	}
	suite.Run(t, new(OrderLifecycleTestSuite))
}
