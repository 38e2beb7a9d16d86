package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultProviderTimeout = 10 * time.Second

// HTTPProviderConfig описывает JSON-эндпоинт внешнего провайдера.
type HTTPProviderConfig struct {
	Endpoint string
	APIKey   string
	Sender   string
	Timeout  time.Duration
}

type httpSender struct {
	cfg    HTTPProviderConfig
	client *http.Client
}

func newHTTPSender(cfg HTTPProviderConfig, client *http.Client) httpSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProviderTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return httpSender{cfg: cfg, client: client}
}

func (s httpSender) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider responded with status %d", resp.StatusCode)
	}
	return nil
}

// HTTPSMSProvider отправляет SMS POST-запросом {from, to, message}.
type HTTPSMSProvider struct {
	sender httpSender
}

// NewHTTPSMSProvider создаёт SMS-провайдер; client может быть nil.
func NewHTTPSMSProvider(cfg HTTPProviderConfig, client *http.Client) *HTTPSMSProvider {
	return &HTTPSMSProvider{sender: newHTTPSender(cfg, client)}
}

func (p *HTTPSMSProvider) SendSMS(ctx context.Context, to, body string) error {
	return p.sender.post(ctx, map[string]string{
		"from":    p.sender.cfg.Sender,
		"to":      to,
		"message": body,
	})
}

// HTTPEmailProvider отправляет письмо POST-запросом {from, to, subject, html}.
type HTTPEmailProvider struct {
	sender httpSender
}

// NewHTTPEmailProvider создаёт email-провайдер; client может быть nil.
func NewHTTPEmailProvider(cfg HTTPProviderConfig, client *http.Client) *HTTPEmailProvider {
	return &HTTPEmailProvider{sender: newHTTPSender(cfg, client)}
}

func (p *HTTPEmailProvider) SendEmail(ctx context.Context, to, subject, html string) error {
	return p.sender.post(ctx, map[string]string{
		"from":    p.sender.cfg.Sender,
		"to":      to,
		"subject": subject,
		"html":    html,
	})
}

// LogProvider пишет сообщения в лог; используется, когда провайдер не настроен.
type LogProvider struct {
	logger *log.Entry
}

// NewLogProvider создаёт логирующий провайдер.
func NewLogProvider(logger *log.Entry) *LogProvider {
	if logger == nil {
		logger = log.WithField("component", "channel-log-provider")
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) SendSMS(_ context.Context, to, body string) error {
	p.logger.WithFields(log.Fields{"to": to, "message": body}).Info("sms")
	return nil
}

func (p *LogProvider) SendEmail(_ context.Context, to, subject, _ string) error {
	p.logger.WithFields(log.Fields{"to": to, "subject": subject}).Info("email")
	return nil
}

var (
	_ SMSProvider   = (*HTTPSMSProvider)(nil)
	_ EmailProvider = (*HTTPEmailProvider)(nil)
	_ SMSProvider   = (*LogProvider)(nil)
	_ EmailProvider = (*LogProvider)(nil)
)
