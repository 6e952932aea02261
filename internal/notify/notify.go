// Package notify sends receipt and daily summary mails and records every
// attempt in the email log.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"automatpos/backend/internal/config"
	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/receipt"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type EmailLogWriter interface {
	CreateEmailLog(ctx context.Context, entry domain.EmailLog) error
}

type Notifier struct {
	mailer   Mailer
	log      EmailLogWriter
	settings config.NotificationSettings
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

func New(mailer Mailer, log EmailLogWriter, settings config.NotificationSettings, currency string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		mailer:   mailer,
		log:      log,
		settings: settings,
		currency: currency,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (n *Notifier) ReceiptsEnabled() bool {
	return n.settings.EmailEnabled && strings.TrimSpace(n.settings.Recipient) != ""
}

// SendReceipt mails the receipt with the PDF attached. It reports whether the
// mail was handed to the server; failures are logged, never returned.
func (n *Notifier) SendReceipt(ctx context.Context, session domain.SalesSession, number string, pdf []byte) bool {
	if !n.ReceiptsEnabled() {
		return false
	}

	subject := "Receipt " + number
	var b strings.Builder
	fmt.Fprintf(&b, "Sale %s completed.\n\n", number)
	for _, item := range session.Items {
		fmt.Fprintf(&b, "%3d x %-30s %s\n", item.Quantity, item.ProductName, receipt.FormatCents(item.TotalCents, n.currency))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", receipt.FormatCents(session.TotalGrossCents, n.currency))
	fmt.Fprintf(&b, "Payment: %s\n", receipt.PaymentLabel(session.PaymentMethod))

	msg := Message{To: []string{n.settings.Recipient}, Subject: subject, Text: b.String()}
	if len(pdf) > 0 {
		msg.Attachments = []Attachment{{Name: number + ".pdf", ContentType: "application/pdf", Content: pdf}}
	}

	sessionID := session.ID
	err := n.mailer.Send(ctx, msg)
	n.record(ctx, subject, &sessionID, err)
	if err != nil {
		n.logger.Warn("receipt email failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return false
	}
	return true
}

// SendDailySummary mails the day's totals and the products at or below minimum stock.
func (n *Notifier) SendDailySummary(ctx context.Context, day time.Time, analytics domain.SalesAnalytics, lowStock []domain.Product) error {
	if strings.TrimSpace(n.settings.Recipient) == "" {
		return fmt.Errorf("daily summary: no recipient configured")
	}

	subject := "Daily summary " + day.Format("2006-01-02")
	var b strings.Builder
	fmt.Fprintf(&b, "Sales on %s\n\n", day.Format("2006-01-02"))
	fmt.Fprintf(&b, "Sales:   %d\n", analytics.Totals.SessionCount)
	fmt.Fprintf(&b, "Items:   %d\n", analytics.Totals.ItemCount)
	fmt.Fprintf(&b, "Gross:   %s\n", receipt.FormatCents(analytics.Totals.GrossCents, n.currency))
	fmt.Fprintf(&b, "Net:     %s\n", receipt.FormatCents(analytics.Totals.NetCents, n.currency))
	fmt.Fprintf(&b, "VAT:     %s\n", receipt.FormatCents(analytics.Totals.VATCents, n.currency))
	fmt.Fprintf(&b, "Profit:  %s\n", receipt.FormatCents(analytics.ProfitCents, n.currency))

	if len(analytics.PaymentBreakdown) > 0 {
		b.WriteString("\nBy payment method:\n")
		for _, pb := range analytics.PaymentBreakdown {
			fmt.Fprintf(&b, "  %-12s %3d  %s\n", receipt.PaymentLabel(pb.PaymentMethod), pb.SessionCount, receipt.FormatCents(pb.GrossCents, n.currency))
		}
	}
	if len(analytics.TopProducts) > 0 {
		b.WriteString("\nTop products:\n")
		for _, tp := range analytics.TopProducts {
			fmt.Fprintf(&b, "  %-30s %4d\n", tp.ProductName, tp.Quantity)
		}
	}
	if len(lowStock) > 0 {
		b.WriteString("\nLow stock:\n")
		for _, p := range lowStock {
			fmt.Fprintf(&b, "  %-30s %d (min %d)\n", p.Name, p.Stock, p.MinStock)
		}
	}

	err := n.mailer.Send(ctx, Message{To: []string{n.settings.Recipient}, Subject: subject, Text: b.String()})
	n.record(ctx, subject, nil, err)
	if err != nil {
		return fmt.Errorf("daily summary: %w", err)
	}
	return nil
}

func (n *Notifier) record(ctx context.Context, subject string, sessionID *int64, sendErr error) {
	entry := domain.EmailLog{
		Recipient: n.settings.Recipient,
		Subject:   subject,
		Status:    StatusSent,
		SessionID: sessionID,
		CreatedAt: n.now(),
	}
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = sendErr.Error()
	}
	if err := n.log.CreateEmailLog(ctx, entry); err != nil {
		n.logger.Warn("email log write failed", zap.String("subject", subject), zap.Error(err))
	}
}
