package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClientForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CAMPUSPRINT_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis is not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBridge_DeliversAcrossHubs(t *testing.T) {
	client := redisClientForTest(t)
	channel := "campusprint:realtime:test:" + time.Now().Format("150405.000000")

	sender := newTestHub(t, prometheus.NewRegistry())
	receiver := newTestHub(t, prometheus.NewRegistry())
	c := newClient(receiver, nil, "student-1", []string{UserRoom("student-1")})
	c.send = make(chan []byte, 4)
	receiver.register(c)

	senderBridge := NewRedisBridge(client, sender, WithBridgeChannel(channel))
	receiverBridge := NewRedisBridge(client, receiver, WithBridgeChannel(channel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 2)
	go func() { done <- senderBridge.Run(ctx) }()
	go func() { done <- receiverBridge.Run(ctx) }()

	require.NoError(t, senderBridge.Ping(ctx))
	require.Eventually(t, func() bool {
		return currentFanout(sender) != nil && currentFanout(receiver) != nil
	}, 3*time.Second, 20*time.Millisecond)

	sender.EmitToUser("student-1", "payment:completed", map[string]string{"orderId": "order-1"})

	select {
	case frame := <-c.send:
		assert.JSONEq(t, `{"event":"payment:completed","data":{"orderId":"order-1"}}`, string(frame))
	case <-time.After(3 * time.Second):
		t.Fatal("frame was not delivered through redis")
	}

	cancel()
	for range 2 {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("bridge did not stop")
		}
	}
	assert.Nil(t, currentFanout(sender))
	assert.Nil(t, currentFanout(receiver))
}

func TestRedisBridge_KeepsRetryingWhileRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	hub := newTestHub(t, prometheus.NewRegistry())
	c := newClient(hub, nil, "student-1", []string{UserRoom("student-1")})
	c.send = make(chan []byte, 4)
	hub.register(c)

	bridge := NewRedisBridge(client, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	assert.Never(t, func() bool {
		return currentFanout(hub) != nil
	}, 300*time.Millisecond, 10*time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("bridge exited while redis is down: %v", err)
	default:
	}

	hub.EmitToUser("student-1", "order:ready", map[string]string{"orderId": "order-1"})
	select {
	case frame := <-c.send:
		assert.JSONEq(t, `{"event":"order:ready","data":{"orderId":"order-1"}}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered locally")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func currentFanout(h *Hub) Fanout {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fanout
}
