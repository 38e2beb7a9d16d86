package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

func newTestBus() *Bus {
	return New(
		WithLogger(log.WithField("test", "eventbus")),
		WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
	)
}

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := newTestBus()

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe(domain.EventOrderReady, func(context.Context, domain.Event) error {
			calls.Add(1)
			return nil
		})
	}
	bus.Subscribe(domain.EventOrderCancelled, func(context.Context, domain.Event) error {
		t.Error("handler for another event type must not be called")
		return nil
	})

	event := bus.Publish(context.Background(), domain.OrderReadyPayload{OrderID: "o-1", UserID: "u-1"})

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, domain.EventOrderReady, event.Type)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestPublish_AssignsFreshIDAndClockTime(t *testing.T) {
	fixed := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	bus := New(
		WithLogger(log.WithField("test", "eventbus")),
		WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
		WithClock(func() time.Time { return fixed }),
	)

	first := bus.Publish(context.Background(), domain.ShopRegisteredPayload{ShopID: "s-1"})
	second := bus.Publish(context.Background(), domain.ShopRegisteredPayload{ShopID: "s-1"})

	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, first.Timestamp.Equal(fixed))
}

func TestPublish_FailingHandlerDoesNotStopOthers(t *testing.T) {
	bus := newTestBus()

	var ok atomic.Int32
	bus.Subscribe(domain.EventOrderConfirmed, func(context.Context, domain.Event) error {
		return errors.New("store unavailable")
	})
	bus.Subscribe(domain.EventOrderConfirmed, func(context.Context, domain.Event) error {
		panic("boom")
	})
	bus.Subscribe(domain.EventOrderConfirmed, func(context.Context, domain.Event) error {
		ok.Add(1)
		return nil
	})

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.OrderConfirmedPayload{OrderID: "o-1"})
	})
	assert.Equal(t, int32(1), ok.Load())
}

func TestPublish_RunsHandlersConcurrently(t *testing.T) {
	bus := newTestBus()

	// Оба обработчика должны стартовать до того, как любой из них завершится.
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		bus.Subscribe(domain.EventOrderCompleted, func(context.Context, domain.Event) error {
			started.Done()
			<-release
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), domain.OrderCompletedPayload{OrderID: "o-1"})
		close(done)
	}()

	waitCh := make(chan struct{})
	go func() {
		started.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers did not run concurrently")
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not return after handlers finished")
	}
}

func TestSubscribe_UnsubscribeIsIdempotent(t *testing.T) {
	bus := newTestBus()

	var calls atomic.Int32
	unsubscribe := bus.Subscribe(domain.EventPaymentSuccess, func(context.Context, domain.Event) error {
		calls.Add(1)
		return nil
	})
	require.Equal(t, 1, bus.HandlerCount(domain.EventPaymentSuccess))

	unsubscribe()
	unsubscribe()

	bus.Publish(context.Background(), domain.PaymentSuccessPayload{OrderID: "o-1"})
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, bus.HandlerCount(domain.EventPaymentSuccess))
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	seen := map[domain.EventType]int{}
	unsubscribe := bus.SubscribeAll(func(_ context.Context, event domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[event.Type]++
		return nil
	})

	bus.Publish(context.Background(), domain.OrderCreatedPayload{OrderID: "o-1"})
	bus.Publish(context.Background(), domain.PaymentFailedPayload{OrderID: "o-1"})
	unsubscribe()
	bus.Publish(context.Background(), domain.OrderCreatedPayload{OrderID: "o-2"})

	assert.Equal(t, 1, seen[domain.EventOrderCreated])
	assert.Equal(t, 1, seen[domain.EventPaymentFailed])
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := newTestBus()
	event := bus.Publish(context.Background(), domain.OrderReadyPayload{OrderID: "o-1"})
	assert.Equal(t, domain.EventOrderReady, event.Type)
}
