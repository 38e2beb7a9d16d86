package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/campusprint/internal/channel"
	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

type stubSMS struct {
	to, body string
	err      error
}

func (s *stubSMS) SendSMS(_ context.Context, to, body string) error {
	s.to, s.body = to, body
	return s.err
}

type stubEmail struct {
	subject, html string
	err           error
}

func (s *stubEmail) SendEmail(_ context.Context, _, subject, html string) error {
	s.subject, s.html = subject, html
	return s.err
}

func testOptions() []channel.Option {
	return []channel.Option{channel.WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry()))}
}

var sampleData = channel.TemplateData{
	Name:     "Asha",
	OrderID:  "9f1c2a7e-1111-2222-3333-444455556666",
	ShopName: "Campus Copy",
	Amount:   decimal.RequireFromString("44.72"),
	Currency: "INR",
	Reason:   "printer broken",
}

func TestRenderSMS(t *testing.T) {
	cases := map[channel.SMSTemplate]string{
		channel.SMSOrderCreated:   "order #9f1c2a7e placed. Total INR 44.72",
		channel.SMSOrderConfirmed: "accepted by the shop",
		channel.SMSOrderReady:     "ready for pickup",
		channel.SMSOrderCancelled: "cancelled: printer broken",
		channel.SMSPaymentSuccess: "payment of INR 44.72",
	}
	for template, fragment := range cases {
		body, err := channel.RenderSMS(template, sampleData)
		require.NoError(t, err, template)
		assert.Contains(t, body, fragment)
	}

	_, err := channel.RenderSMS("unknown", sampleData)
	assert.Error(t, err)
}

func TestSMSAdapter_ProviderFailureIsNotFatal(t *testing.T) {
	provider := &stubSMS{err: errors.New("gateway timeout")}
	adapter := channel.NewSMSAdapter(provider, testOptions()...)

	result := adapter.Send(context.Background(), channel.SMSOrderReady, "+919800000001", sampleData)
	assert.False(t, result.Success)
	assert.Equal(t, channel.SMS, result.Channel)
	assert.Contains(t, result.Error, "gateway timeout")

	provider.err = nil
	result = adapter.Send(context.Background(), channel.SMSOrderReady, "+919800000001", sampleData)
	assert.True(t, result.Success)
	assert.Equal(t, "+919800000001", provider.to)
}

func TestEmailRenderer_UsesLayout(t *testing.T) {
	renderer, err := channel.NewEmailRenderer()
	require.NoError(t, err)

	data := sampleData
	data.Name = "<script>alert(1)</script>"
	subject, html, err := renderer.Render(channel.EmailOrderReady, data)
	require.NoError(t, err)
	assert.Equal(t, "CampusPrint: Your prints are ready", subject)
	assert.Contains(t, html, "CampusPrint</div>")
	assert.Contains(t, html, "ready for pickup at Campus Copy")
	assert.Contains(t, html, "You are receiving this email")
	assert.NotContains(t, html, "<script>")

	_, _, err = renderer.Render("unknown", sampleData)
	assert.Error(t, err)
}

func TestEmailAdapter_Send(t *testing.T) {
	provider := &stubEmail{}
	adapter, err := channel.NewEmailAdapter(provider, testOptions()...)
	require.NoError(t, err)

	result := adapter.Send(context.Background(), channel.EmailPaymentSuccess, "asha@campus.test", sampleData)
	assert.True(t, result.Success)
	assert.Contains(t, provider.html, "INR 44.72")

	provider.err = errors.New("smtp down")
	result = adapter.Send(context.Background(), channel.EmailPaymentSuccess, "asha@campus.test", sampleData)
	assert.False(t, result.Success)
}

func TestPushAdapter_AlwaysSucceeds(t *testing.T) {
	result := channel.NewPushAdapter(testOptions()...).Send(context.Background(), "user-1", "title", "body")
	assert.Equal(t, channel.Result{Channel: channel.Push, Success: true}, result)
}

func TestHTTPProviders(t *testing.T) {
	var received map[string]string
	status := http.StatusAccepted
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(status)
	}))
	defer server.Close()

	cfg := channel.HTTPProviderConfig{Endpoint: server.URL, APIKey: "secret", Sender: "CMPSPR"}

	sms := channel.NewHTTPSMSProvider(cfg, server.Client())
	require.NoError(t, sms.SendSMS(context.Background(), "+919800000001", "hello"))
	assert.Equal(t, "hello", received["message"])
	assert.Equal(t, "CMPSPR", received["from"])

	email := channel.NewHTTPEmailProvider(cfg, nil)
	require.NoError(t, email.SendEmail(context.Background(), "a@b.c", "subj", "<p>x</p>"))
	assert.Equal(t, "subj", received["subject"])

	status = http.StatusBadGateway
	assert.Error(t, sms.SendSMS(context.Background(), "+919800000001", "hello"))
}

func TestDeliveryErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &channel.DeliveryError{Channel: channel.SMS, Recipient: "+91", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "sms delivery to +91 failed")
}
