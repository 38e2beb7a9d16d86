package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrCircuitOpen возвращается, пока провайдер считается недоступным.
var ErrCircuitOpen = errors.New("provider circuit breaker is open")

// CircuitState описывает состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker перестаёт вызывать провайдера после maxFailures ошибок подряд
// и пропускает одну пробную попытку по истечении resetTimeout.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	logger       *log.Entry

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		logger:       logger,
		state:        CircuitClosed,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет fn, если цепь не разомкнута.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			if cb.state != CircuitOpen {
				cb.logger.WithFields(log.Fields{
					"operation": operation,
					"failures":  cb.failures,
				}).Warn("circuit breaker opened")
			}
			cb.state = CircuitOpen
		}
		return err
	}

	if cb.state == CircuitHalfOpen {
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.state = CircuitClosed
	cb.failures = 0
	return nil
}

type guardedSMSProvider struct {
	provider SMSProvider
	breaker  *CircuitBreaker
}

// GuardSMSProvider оборачивает SMS-провайдера circuit breaker'ом.
func GuardSMSProvider(provider SMSProvider, breaker *CircuitBreaker) SMSProvider {
	return guardedSMSProvider{provider: provider, breaker: breaker}
}

func (g guardedSMSProvider) SendSMS(ctx context.Context, to, body string) error {
	return g.breaker.Execute("sms", func() error {
		return g.provider.SendSMS(ctx, to, body)
	})
}

type guardedEmailProvider struct {
	provider EmailProvider
	breaker  *CircuitBreaker
}

// GuardEmailProvider оборачивает email-провайдера circuit breaker'ом.
func GuardEmailProvider(provider EmailProvider, breaker *CircuitBreaker) EmailProvider {
	return guardedEmailProvider{provider: provider, breaker: breaker}
}

func (g guardedEmailProvider) SendEmail(ctx context.Context, to, subject, html string) error {
	return g.breaker.Execute("email", func() error {
		return g.provider.SendEmail(ctx, to, subject, html)
	})
}
