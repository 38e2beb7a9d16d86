// Package health отдаёт /healthz, /readyz и /livez для API и воркера.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check описывает результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response описывает тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Readiness описывает тело /readyz.
type Readiness struct {
	Ready   bool     `json:"ready"`
	Failing []string `json:"failing,omitempty"`
}

// Checker проверяет одну зависимость.
type Checker interface {
	Check() Check
}

// Handler собирает проверки зависимостей процесса.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
	now       func() time.Time
}

// NewHandler создаёт health handler для версии сборки.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RegisterChecker регистрирует проверку под именем; повторная регистрация заменяет прежнюю.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// runChecks выполняет проверки параллельно: медленный брокер не задерживает ответ по postgres.
func (h *Handler) runChecks() map[string]Check {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		g      errgroup.Group
		checks = make(map[string]Check, len(checkers))
	)
	for name, checker := range checkers {
		g.Go(func() error {
			check := checker.Check()
			mu.Lock()
			checks[name] = check
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

// Overall сводит статусы: любой unhealthy делает процесс unhealthy, degraded понижает healthy.
func Overall(checks map[string]Check) Status {
	overall := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// ServeHTTP отдаёт подробный отчёт; 503 только при unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks := h.runChecks()
	response := Response{
		Status:        Overall(checks),
		Timestamp:     h.now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if response.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

// ReadinessHandler возвращает 503 и список упавших обязательных зависимостей.
// Degraded-зависимости готовность не снимают.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	var failing []string
	for name, check := range h.runChecks() {
		if check.Status == StatusUnhealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	if len(failing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, Readiness{Ready: false, Failing: failing})
		return
	}
	writeJSON(w, http.StatusOK, Readiness{Ready: true})
}

// LivenessHandler всегда отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// PingChecker проверяет внешнюю зависимость (postgres, брокер, redis) с таймаутом.
// Для необязательной зависимости сбой даёт degraded: сервис продолжает работу,
// публикации в очередь логируются и отбрасываются.
type PingChecker struct {
	name     string
	timeout  time.Duration
	ping     func(ctx context.Context) error
	optional bool
}

// NewPingChecker создаёт проверку обязательной зависимости.
func NewPingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, timeout: timeout, ping: ping}
}

// Optional помечает зависимость необязательной.
func (c *PingChecker) Optional() *PingChecker {
	c.optional = true
	return c
}

// Check выполняет ping.
func (c *PingChecker) Check() Check {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	err := c.ping(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		if c.optional {
			check.Status = StatusDegraded
		}
		check.Message = err.Error()
	}
	return check
}
