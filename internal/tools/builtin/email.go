package builtin

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"axon/internal/approval"
	"axon/internal/tools"
)

// Mailer sends an email message. Implementations must be safe for concurrent
// use.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer sends mail through a fixed SMTP relay.
type SMTPMailer struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// Send delivers the message via SMTP with optional PLAIN auth.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.From, strings.Join(to, ", "), subject, body)

	var auth smtp.Auth
	if m.Username != "" {
		host := m.Addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	return smtp.SendMail(m.Addr, auth, m.From, to, []byte(msg))
}

// SendEmailTool sends an email through the configured mailer.
type SendEmailTool struct {
	mailer Mailer
}

// NewSendEmailTool creates an email tool. A nil mailer leaves the tool
// registered but unconfigured; executions return an error result.
func NewSendEmailTool(mailer Mailer) *SendEmailTool {
	return &SendEmailTool{mailer: mailer}
}

func (t *SendEmailTool) Name() string { return "send_email" }

func (t *SendEmailTool) Description() string {
	return "Send an email to one or more recipients."
}

func (t *SendEmailTool) Risk() approval.RiskLevel { return approval.RiskHigh }

func (t *SendEmailTool) Parameters() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"to": map[string]any{
			"type":        "string",
			"description": "Comma-separated list of recipient addresses",
		},
		"subject": map[string]any{
			"type":        "string",
			"description": "Email subject line",
		},
		"body": map[string]any{
			"type":        "string",
			"description": "Email body text",
		},
	}, "to", "subject", "body")
}

func (t *SendEmailTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	if t.mailer == nil {
		return tools.NewErrorResult("email is not configured"), nil
	}

	toRaw, ok := stringArg(args, "to")
	if !ok || strings.TrimSpace(toRaw) == "" {
		return tools.NewErrorResult("missing required argument: to"),
			tools.NewInvalidArgsError(t.Name(), "to is required")
	}
	subject := optionalStringArg(args, "subject", "")
	body := optionalStringArg(args, "body", "")

	var to []string
	for _, addr := range strings.Split(toRaw, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return tools.NewErrorResult("no valid recipients"),
			tools.NewInvalidArgsError(t.Name(), "to contains no addresses")
	}

	if err := t.mailer.Send(ctx, to, subject, body); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("send failed: %v", err)), nil
	}
	return tools.NewSuccessResult(fmt.Sprintf("email sent to %s", strings.Join(to, ", "))), nil
}
