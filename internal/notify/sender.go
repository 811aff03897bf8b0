package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/pkg/config"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n *domain.Notification) error
}

// LogSender writes notifications to the structured log. It is the default
// when no mail server is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n *domain.Notification) error {
	s.logger.InfoContext(ctx, "notification delivered",
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("tenant_id", n.TenantID),
		slog.String("reservation_id", n.ReservationID),
		slog.Int("recipients", len(n.Recipients)),
		slog.String("message", n.Message),
	)
	return nil
}

// SMTPSender mails notifications through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg      config.SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := buildMessage(from, n)
	if err := s.sendMail(s.cfg.Host+":"+s.cfg.Port, auth, from, n.Recipients, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func buildMessage(from string, n *domain.Notification) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(n.Recipients, ", ") + "\r\n")
	b.WriteString("Subject: " + subject(n.Kind) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(n.Message + "\r\n")
	return []byte(b.String())
}

func subject(kind domain.NotificationKind) string {
	switch kind {
	case domain.NotifyApproved:
		return "Reservation approved"
	case domain.NotifyRejected:
		return "Reservation rejected"
	case domain.NotifyOverdue:
		return "Equipment overdue"
	}
	return "Reservation update"
}
