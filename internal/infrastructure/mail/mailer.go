package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/requestdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/requestdesk/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/requestdesk/internal/reliability/retry"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateVerifyEmail   = "verify_email"
	TemplatePasswordReset = "password_reset"
)

var subjects = map[string]string{
	TemplateVerifyEmail:   "Verifica tu correo electrónico",
	TemplatePasswordReset: "Restablece tu contraseña",
}

// Mailer renders account emails and hands them to a Sender behind retries and
// a circuit breaker.
type Mailer struct {
	sender    Sender
	from      string
	templates *template.Template
	retry     *retry.Config
	breaker   *circuitbreaker.CircuitBreaker
	logger    *slog.Logger
}

func NewMailer(sender Sender, from string, logger *slog.Logger) (*Mailer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}

	name := "mail_" + sender.Name()
	metrics.SetBreakerState(name, int(circuitbreaker.StateClosed))
	breaker := circuitbreaker.New(circuitbreaker.Settings{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logger.Warn("mail circuit breaker state changed",
				slog.String("provider", sender.Name()),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Mailer{
		sender:    sender,
		from:      from,
		templates: tmpl,
		retry:     retry.DefaultConfig(),
		breaker:   breaker,
		logger:    logger,
	}, nil
}

type linkData struct {
	Name string
	Link string
	TTL  string
}

// SendVerification mails the email-verification link.
func (m *Mailer) SendVerification(ctx context.Context, to, name, link string) error {
	return m.send(ctx, TemplateVerifyEmail, to, linkData{Name: name, Link: link, TTL: "24 horas"},
		fmt.Sprintf("Hola %s,\n\nConfirma tu correo electrónico en el siguiente enlace (válido por 24 horas):\n%s\n", name, link))
}

// SendPasswordReset mails the password-reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, link string) error {
	return m.send(ctx, TemplatePasswordReset, to, linkData{Name: name, Link: link, TTL: "30 minutos"},
		fmt.Sprintf("Hola %s,\n\nRestablece tu contraseña en el siguiente enlace (válido por 30 minutos):\n%s\n\nSi no solicitaste este cambio, ignora este mensaje.\n", name, link))
}

func (m *Mailer) send(ctx context.Context, tmpl, to string, data linkData, text string) error {
	var html bytes.Buffer
	if err := m.templates.ExecuteTemplate(&html, tmpl+".html", data); err != nil {
		metrics.ObserveMail(tmpl, "render_error")
		return fmt.Errorf("render %s: %w", tmpl, err)
	}
	msg := Message{From: m.from, To: to, Subject: subjects[tmpl], HTML: html.String(), Text: text}

	_, err := retry.Do(ctx, m.retry, m.logger, "send "+tmpl, func(ctx context.Context) (struct{}, error) {
		err := m.breaker.Execute(ctx, func(ctx context.Context) error {
			return m.sender.Send(ctx, msg)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return struct{}{}, retry.Permanent(err)
		}
		return struct{}{}, err
	})
	if err != nil {
		metrics.ObserveMail(tmpl, "error")
		return fmt.Errorf("send %s via %s: %w", tmpl, m.sender.Name(), err)
	}
	metrics.ObserveMail(tmpl, "sent")
	m.logger.Info("mail sent", slog.String("template", tmpl), slog.String("provider", m.sender.Name()))
	return nil
}
