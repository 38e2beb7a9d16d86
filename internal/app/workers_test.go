package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/channel"
	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
	"github.com/vladislavdragonenkov/campusprint/internal/worker"
)

const timeoutForTest = 2 * time.Second

func timeForTest() time.Time {
	return time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
}

func TestChannelProviders(t *testing.T) {
	logger := log.WithField("test", "providers")

	sms, email := channelProviders(DefaultConfig(), logger)
	if _, ok := sms.(*channel.LogProvider); !ok {
		t.Fatalf("expected log sms provider, got %T", sms)
	}
	if _, ok := email.(*channel.LogProvider); !ok {
		t.Fatalf("expected log email provider, got %T", email)
	}

	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.SMSEndpoint = srv.URL + "/sms"
	cfg.EmailEndpoint = srv.URL + "/email"
	sms, email = channelProviders(cfg, logger)
	if _, ok := sms.(*channel.LogProvider); ok {
		t.Fatal("expected http sms provider")
	}
	if err := sms.SendSMS(context.Background(), "+919876543210", "ready"); err != nil {
		t.Fatalf("send sms failed: %v", err)
	}
	if err := email.SendEmail(context.Background(), "student@campus.in", "Ready", "<p>ready</p>"); err != nil {
		t.Fatalf("send email failed: %v", err)
	}
	if len(hits) != 2 || hits[0] != "/sms" || hits[1] != "/email" {
		t.Fatalf("unexpected provider calls: %v", hits)
	}
}

func TestBuildConsumers_RequiresEverySource(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	broker := queue.NewMemoryBroker()
	defer broker.Close()

	_, err := buildConsumers(DefaultConfig(), map[string]queue.Source{
		queue.Notifications: broker.Source(queue.Notifications),
	}, m, log.WithField("test", "consumers"))
	if err == nil {
		t.Fatal("expected error for missing sources")
	}
}

func TestBuildConsumers_DrainsInProcessQueues(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	broker := queue.NewMemoryBroker()
	defer broker.Close()

	sources := map[string]queue.Source{}
	for _, name := range queue.Names() {
		sources[name] = broker.Source(name)
	}
	consumers, err := buildConsumers(DefaultConfig(), sources, m, log.WithField("test", "consumers"))
	if err != nil {
		t.Fatalf("buildConsumers failed: %v", err)
	}
	if len(consumers) != len(queue.Names()) {
		t.Fatalf("expected %d consumers, got %d", len(queue.Names()), len(consumers))
	}

	job, err := queue.NewMessage(worker.FileProcessingEvent, worker.FileJob{OrderID: "order-1", FileKey: "uploads/notes.pdf", Pages: 10}, timeForTest())
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := broker.Publish(context.Background(), queue.FileProcessing, job); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := broker.PublishRaw(queue.Notifications, []byte("{not json")); err != nil {
		t.Fatalf("publish raw: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.NewRunner(consumers...).Run(ctx) }()

	deadline := time.Now().Add(timeoutForTest)
	for time.Now().Before(deadline) {
		if broker.Len(queue.FileProcessing) == 0 && broker.Len(queue.DLQName(queue.Notifications)) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if broker.Len(queue.FileProcessing) != 0 {
		t.Fatal("file job was not consumed")
	}
	if broker.Len(queue.DLQName(queue.Notifications)) != 1 {
		t.Fatal("malformed notification must be dead-lettered")
	}
}
