package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/metrics"
)

// EmailTemplate задаёт подтип письма.
type EmailTemplate string

const (
	EmailOrderCreated   EmailTemplate = "order_created"
	EmailOrderReady     EmailTemplate = "order_ready"
	EmailOrderCompleted EmailTemplate = "order_completed"
	EmailOrderCancelled EmailTemplate = "order_cancelled"
	EmailPaymentSuccess EmailTemplate = "payment_success"
	EmailPaymentFailed  EmailTemplate = "payment_failed"
	EmailShopWelcome    EmailTemplate = "shop_welcome"
)

const emailLayout = `{{define "layout"}}<!DOCTYPE html>
<html>
<body style="margin:0;font-family:Arial,sans-serif;background:#f4f4f7;">
{{template "header" .}}
<div style="max-width:560px;margin:0 auto;background:#ffffff;padding:24px;">
{{template "content" .}}
</div>
{{template "footer" .}}
</body>
</html>{{end}}
{{define "header"}}<div style="background:#1f3c88;color:#ffffff;padding:16px;text-align:center;font-size:20px;">CampusPrint</div>{{end}}
{{define "footer"}}<div style="color:#888888;font-size:12px;text-align:center;padding:16px;">You are receiving this email because you use CampusPrint.</div>{{end}}`

type emailDefinition struct {
	subject string
	content string
}

var emailDefinitions = map[EmailTemplate]emailDefinition{
	EmailOrderCreated: {
		subject: "Order placed",
		content: `<p>Hi {{.Name}},</p><p>Your order <b>#{{.ShortOrderID}}</b> has been placed. Total: <b>{{.FormattedAmount}}</b>.</p>`,
	},
	EmailOrderReady: {
		subject: "Your prints are ready",
		content: `<p>Hi {{.Name}},</p><p>Order <b>#{{.ShortOrderID}}</b> is ready for pickup{{if .ShopName}} at {{.ShopName}}{{end}}.</p>`,
	},
	EmailOrderCompleted: {
		subject: "Order completed",
		content: `<p>Hi {{.Name}},</p><p>Order <b>#{{.ShortOrderID}}</b> is complete. Amount charged: <b>{{.FormattedAmount}}</b>.</p>`,
	},
	EmailOrderCancelled: {
		subject: "Order cancelled",
		content: `<p>Hi {{.Name}},</p><p>Order <b>#{{.ShortOrderID}}</b> was cancelled.{{if .Reason}} Reason: {{.Reason}}.{{end}}</p>`,
	},
	EmailPaymentSuccess: {
		subject: "Payment received",
		content: `<p>Hi {{.Name}},</p><p>We received your payment of <b>{{.FormattedAmount}}</b> for order <b>#{{.ShortOrderID}}</b>.</p>`,
	},
	EmailPaymentFailed: {
		subject: "Payment failed",
		content: `<p>Hi {{.Name}},</p><p>Your payment of <b>{{.FormattedAmount}}</b> for order <b>#{{.ShortOrderID}}</b> did not go through. Please try again.</p>`,
	},
	EmailShopWelcome: {
		subject: "Welcome to CampusPrint",
		content: `<p>Hi {{.Name}},</p><p>{{.ShopName}} is now listed on CampusPrint. Students nearby can start sending print orders.</p>`,
	},
}

// EmailProvider отправляет письмо через внешний сервис.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

// EmailRenderer собирает письма из общего layout и контента шаблона.
type EmailRenderer struct {
	templates map[EmailTemplate]*template.Template
}

// NewEmailRenderer разбирает все шаблоны писем.
func NewEmailRenderer() (*EmailRenderer, error) {
	base, err := template.New("email").Parse(emailLayout)
	if err != nil {
		return nil, fmt.Errorf("parse email layout: %w", err)
	}

	r := &EmailRenderer{templates: make(map[EmailTemplate]*template.Template, len(emailDefinitions))}
	for name, def := range emailDefinitions {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone email layout: %w", err)
		}
		if _, err := t.New("content").Parse(def.content); err != nil {
			return nil, fmt.Errorf("parse email template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render возвращает тему и HTML-тело письма.
func (r *EmailRenderer) Render(name EmailTemplate, data TemplateData) (string, string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", "", fmt.Errorf("render email template %s: %w", name, err)
	}
	return "CampusPrint: " + emailDefinitions[name].subject, buf.String(), nil
}

// EmailAdapter рендерит письмо и передаёт его провайдеру.
type EmailAdapter struct {
	provider EmailProvider
	renderer *EmailRenderer
	logger   *log.Entry
	metrics  *metrics.Metrics
}

// NewEmailAdapter создаёт email-адаптер.
func NewEmailAdapter(provider EmailProvider, options ...Option) (*EmailAdapter, error) {
	renderer, err := NewEmailRenderer()
	if err != nil {
		return nil, err
	}
	cfg := newConfig("email", options)
	return &EmailAdapter{provider: provider, renderer: renderer, logger: cfg.logger, metrics: cfg.metrics}, nil
}

// Send отправляет письмо. Ошибка провайдера отражается в Result.
func (a *EmailAdapter) Send(ctx context.Context, name EmailTemplate, to string, data TemplateData) Result {
	subject, html, err := a.renderer.Render(name, data)
	if err == nil {
		err = a.provider.SendEmail(ctx, to, subject, html)
	}
	if err != nil {
		result, derr := failed(Email, to, err)
		a.logger.WithError(derr).WithField("template", name).Warn("email delivery failed")
		a.metrics.RecordChannelDelivery(string(Email), false)
		return result
	}

	a.metrics.RecordChannelDelivery(string(Email), true)
	return Result{Channel: Email, Success: true}
}
