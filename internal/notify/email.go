package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"freebies_claimer/internal/logbus"
	"freebies_claimer/internal/model"
)

type sendFunc func(ctx context.Context, settings model.EmailSettings, subject, htmlBody, textBody string) error

// EmailNotifier mails a summary after every pass that touched at least one offer.
// Summaries are queued and sent from a background goroutine; Close flushes the queue.
type EmailNotifier struct {
	settings model.EmailSettings
	bus      *logbus.Bus
	send     sendFunc

	mu     sync.Mutex
	queue  chan model.RunSummary
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func NewEmailNotifier(settings model.EmailSettings, bus *logbus.Bus) *EmailNotifier {
	return newEmailNotifier(settings, bus, sendSMTP)
}

func newEmailNotifier(settings model.EmailSettings, bus *logbus.Bus, send sendFunc) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		settings: settings,
		bus:      bus,
		send:     send,
		queue:    make(chan model.RunSummary, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

// Close sends whatever is still queued and waits for the sender to stop.
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyRunSummary(_ context.Context, summary model.RunSummary) {
	if len(summary.Claims) == 0 {
		return
	}
	select {
	case n.queue <- summary:
	default:
		n.bus.Warn("summary email dropped: queue full", map[string]any{"runId": summary.RunID})
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			for {
				select {
				case s := <-n.queue:
					n.handle(context.Background(), s)
				default:
					return
				}
			}
		case s := <-n.queue:
			n.handle(context.Background(), s)
		}
	}
}

func (n *EmailNotifier) handle(ctx context.Context, summary model.RunSummary) {
	if !n.settings.Enabled {
		n.bus.Debug("summary email disabled", map[string]any{"runId": summary.RunID})
		return
	}
	if err := validateEmailSettings(n.settings); err != nil {
		n.bus.Warn("invalid email settings", map[string]any{"error": err.Error()})
		return
	}

	subject := buildSummarySubject(summary)
	htmlBody, textBody, err := buildSummaryEmailBody(summary)
	if err != nil {
		n.bus.Warn("summary email render failed", map[string]any{"error": err.Error()})
		return
	}
	if err := n.send(ctx, n.settings, subject, htmlBody, textBody); err != nil {
		n.bus.Warn("summary email failed", map[string]any{
			"error": err.Error(),
			"runId": summary.RunID,
		})
		return
	}
	n.bus.Info("summary email sent", map[string]any{
		"runId": summary.RunID,
		"count": len(summary.Claims),
		"to":    recipient(n.settings),
	})
}

func validateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if to := strings.TrimSpace(s.To); to != "" {
		if _, err := mail.ParseAddress(to); err != nil {
			return errors.New("invalid recipient")
		}
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func recipient(s model.EmailSettings) string {
	if to := strings.TrimSpace(s.To); to != "" {
		return to
	}
	return strings.TrimSpace(s.Email)
}

func sendSMTP(ctx context.Context, settings model.EmailSettings, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "Freebies Claimer"))
	msg.SetHeader("To", recipient(settings))
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "gmail.com" || strings.HasSuffix(domain, ".gmail.com") || domain == "googlemail.com":
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || strings.HasSuffix(domain, ".outlook.com") ||
		domain == "hotmail.com" || strings.HasSuffix(domain, ".hotmail.com") ||
		domain == "live.com" || strings.HasSuffix(domain, ".live.com"):
		return "smtp.office365.com", 587, false, nil
	case domain == "yahoo.com" || strings.HasSuffix(domain, ".yahoo.com"):
		return "smtp.mail.yahoo.com", 465, true, nil
	case domain == "icloud.com" || domain == "me.com" || domain == "mac.com":
		return "smtp.mail.me.com", 587, false, nil
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com" || strings.HasSuffix(domain, ".foxmail.com"):
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || strings.HasSuffix(domain, ".163.com") ||
		domain == "126.com" || strings.HasSuffix(domain, ".126.com"):
		return "smtp.163.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSummarySubject(s model.RunSummary) string {
	claimed := len(s.Claimed())
	if claimed == 0 {
		return fmt.Sprintf("Free promotions: nothing new (pass %d)", s.Pass)
	}
	return fmt.Sprintf("Free promotions: %d claimed (pass %d)", claimed, s.Pass)
}

var emailSummaryHTMLTpl = template.Must(template.New("email-summary").Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width" />
    <title>Claim summary</title>
  </head>
  <body style="margin:0;padding:0;background:#f6f8fb;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,'Helvetica Neue',Arial,sans-serif;">
    <div style="max-width:720px;margin:0 auto;padding:24px;">
      <div style="background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
        <div style="padding:18px 22px;background:linear-gradient(135deg,#0ea5e9,#6366f1);color:#ffffff;">
          <div style="font-size:16px;font-weight:700;letter-spacing:.2px;">Claim summary</div>
          <div style="margin-top:6px;font-size:12px;opacity:.95;">Run {{ .RunID }} · pass {{ .Pass }}</div>
        </div>

        <div style="padding:22px;">
          <div style="font-size:14px;color:#111827;">
            <strong>{{ .Claimed }}</strong> claimed out of {{ .Total }} offers, {{ .Start }} ~ {{ .End }}
          </div>

          <div style="margin-top:12px;border:1px solid #eef0f6;border-radius:12px;overflow:hidden;">
            <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="width:100%;border-collapse:collapse;">
              <thead>
                <tr style="background:#fafbff;">
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Time</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Offer</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Account</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Status</th>
                  <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">Detail</th>
                </tr>
              </thead>
              <tbody>
                {{ range .Rows }}
                <tr>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .At }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Title }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Account }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Status }}</td>
                  <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Detail }}</td>
                </tr>
                {{ end }}
              </tbody>
            </table>
          </div>

          <div style="margin-top:14px;color:#9ca3af;font-size:12px;line-height:1.6;">
            This message was sent automatically.
          </div>
        </div>
      </div>
    </div>
  </body>
</html>
`))

func buildSummaryEmailBody(s model.RunSummary) (htmlBody string, textBody string, err error) {
	if len(s.Claims) == 0 {
		return "", "", errors.New("no claims")
	}

	type summaryRow struct {
		At      string
		Title   string
		Account string
		Status  string
		Detail  string
	}

	rows := make([]summaryRow, 0, len(s.Claims))
	for _, c := range s.Claims {
		at := c.At
		if at.IsZero() {
			at = time.Now()
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = c.Namespace + ":" + c.OfferID
		}
		detail := c.OrderID
		if c.Status == model.ClaimStatusFailed {
			detail = c.Error
		}
		rows = append(rows, summaryRow{
			At:      at.Format("2006-01-02 15:04:05"),
			Title:   title,
			Account: c.Email,
			Status:  string(c.Status),
			Detail:  detail,
		})
	}

	start, end := s.StartedAt, s.FinishedAt
	if end.IsZero() {
		end = time.Now()
	}
	data := struct {
		RunID   string
		Pass    int
		Claimed int
		Total   int
		Start   string
		End     string
		Rows    []summaryRow
	}{
		RunID:   s.RunID,
		Pass:    s.Pass,
		Claimed: len(s.Claimed()),
		Total:   len(s.Claims),
		Start:   start.Format("2006-01-02 15:04:05"),
		End:     end.Format("2006-01-02 15:04:05"),
		Rows:    rows,
	}

	var buf bytes.Buffer
	if err := emailSummaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	text.WriteString("Claim summary\n")
	text.WriteString(fmt.Sprintf("%d claimed out of %d offers, %s ~ %s\n", data.Claimed, data.Total, data.Start, data.End))
	for _, row := range rows {
		text.WriteString(fmt.Sprintf("- %s | %s | %s | %s | %s\n", row.At, row.Title, row.Account, row.Status, row.Detail))
	}

	return buf.String(), text.String(), nil
}
