// Package eventbus реализует внутрипроцессную шину доменных событий.
//
// Publish вызывает всех подписчиков конкурентно и дожидается их завершения.
// Ошибка или паника одного подписчика логируется и не мешает остальным;
// вызывающий код ошибок не получает. Гарантий доставки кроме одной попытки
// в этом процессе нет.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

// Handler обрабатывает доменное событие.
type Handler func(ctx context.Context, event domain.Event) error

// Bus реализует domain.EventPublisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType]map[uint64]Handler
	nextID   uint64

	logger  *log.Entry
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option настраивает Bus.
type Option func(*Bus)

// WithLogger задаёт logger для шины.
func WithLogger(logger *log.Entry) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithMetrics задаёт набор метрик.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

// New создаёт пустую шину.
func New(options ...Option) *Bus {
	b := &Bus{
		handlers: make(map[domain.EventType]map[uint64]Handler),
		now:      time.Now,
	}
	for _, option := range options {
		option(b)
	}
	if b.logger == nil {
		b.logger = log.WithField("component", "eventbus")
	}
	if b.metrics == nil {
		b.metrics = metrics.Default()
	}
	return b
}

// Subscribe регистрирует обработчик и возвращает функцию отписки.
// Повторный вызов отписки ничего не делает.
func (b *Bus) Subscribe(eventType domain.EventType, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[eventType], id)
			if len(b.handlers[eventType]) == 0 {
				delete(b.handlers, eventType)
			}
		})
	}
}

// SubscribeAll подписывает один обработчик на каждый тип события.
func (b *Bus) SubscribeAll(handler Handler) func() {
	types := domain.AllEventTypes()
	unsubscribers := make([]func(), 0, len(types))
	for _, eventType := range types {
		unsubscribers = append(unsubscribers, b.Subscribe(eventType, handler))
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

// HandlerCount возвращает число подписчиков на тип события.
func (b *Bus) HandlerCount(eventType domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Publish создаёт событие (новый ID, время) и ждёт всех подписчиков.
func (b *Bus) Publish(ctx context.Context, payload domain.EventPayload) domain.Event {
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      payload.EventType(),
		Timestamp: b.now().UTC(),
		Payload:   payload,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, handler := range b.handlers[event.Type] {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	b.metrics.RecordEventPublished(string(event.Type))

	var g errgroup.Group
	for _, handler := range handlers {
		g.Go(func() error {
			b.invoke(ctx, event, handler)
			return nil
		})
	}
	_ = g.Wait()

	return event
}

func (b *Bus) invoke(ctx context.Context, event domain.Event, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.fail(event, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := handler(ctx, event); err != nil {
		b.fail(event, err)
	}
}

func (b *Bus) fail(event domain.Event, err error) {
	b.metrics.RecordHandlerFailure(string(event.Type))
	b.logger.WithError(err).WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	}).Error("event handler failed")
}

var _ domain.EventPublisher = (*Bus)(nil)
