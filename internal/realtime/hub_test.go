package realtime_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/campusprint/internal/auth"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
	"github.com/vladislavdragonenkov/campusprint/internal/realtime"
)

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newServer(t *testing.T) (*realtime.Hub, *auth.Verifier, *httptest.Server) {
	t.Helper()
	verifier, err := auth.NewVerifier("secret")
	require.NoError(t, err)
	hub := realtime.NewHub(verifier, realtime.WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())))
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, verifier, server
}

func dial(t *testing.T, server *httptest.Server, verifier *auth.Verifier, p auth.Principal) *websocket.Conn {
	t.Helper()
	token, err := verifier.Issue(p, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame received
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHub_RejectsUnauthenticated(t *testing.T) {
	_, _, server := newServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestHub_RoomsReceiveOnlyTheirEvents(t *testing.T) {
	hub, verifier, server := newServer(t)

	student := dial(t, server, verifier, auth.Principal{UserID: "student-1", Role: domain.UserRoleStudent})
	owner := dial(t, server, verifier, auth.Principal{UserID: "owner-1", Role: domain.UserRoleShopOwner, ShopID: "shop-1"})
	require.Eventually(t, func() bool {
		return hub.RoomSize("user:student-1") == 1 && hub.RoomSize("shop:shop-1") == 1 && hub.RoomSize("user:owner-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.EmitToShop("shop-1", domain.RealtimeOrderCreated, map[string]string{"orderId": "order-1"})
	hub.EmitToUser("student-1", domain.RealtimeOrderStatusChanged, map[string]string{"status": "READY"})

	ownerFrame := readFrame(t, owner)
	assert.Equal(t, domain.RealtimeOrderCreated, ownerFrame.Event)
	assert.JSONEq(t, `{"orderId":"order-1"}`, string(ownerFrame.Data))

	studentFrame := readFrame(t, student)
	assert.Equal(t, domain.RealtimeOrderStatusChanged, studentFrame.Event)
	assert.JSONEq(t, `{"status":"READY"}`, string(studentFrame.Data))
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, verifier, server := newServer(t)
	conn := dial(t, server, verifier, auth.Principal{UserID: "student-1"})
	require.Eventually(t, func() bool { return hub.RoomSize("user:student-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.RoomSize("user:student-1") == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.EmitToUser("student-1", domain.RealtimeNotificationNew, nil)
}
