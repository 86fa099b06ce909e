// Package email ingests inbound emails delivered by a mail webhook,
// persists them with their attachments, and issues an automatic
// acknowledgement reply.
package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/store"
)

// InboundAttachment is one attachment as delivered by the mail webhook,
// with its content base64 encoded.
type InboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// InboundEmail is the payload posted by the inbound mail webhook.
type InboundEmail struct {
	From        string              `json:"from"`
	To          string              `json:"to"`
	CC          string              `json:"cc,omitempty"`
	Subject     string              `json:"subject"`
	Text        string              `json:"text,omitempty"`
	HTML        string              `json:"html,omitempty"`
	Headers     map[string]string   `json:"headers,omitempty"`
	Attachments []InboundAttachment `json:"attachments,omitempty"`
}

// Replier sends the automatic acknowledgement for a processed email.
type Replier interface {
	Reply(ctx context.Context, to, subject, body string) error
}

// LogReplier records outgoing replies in the log instead of sending them.
// It stands in until an outbound mail transport is configured.
type LogReplier struct {
	logger *observability.Logger
}

// NewLogReplier returns a Replier that only logs.
func NewLogReplier(logger *observability.Logger) *LogReplier {
	return &LogReplier{logger: logger}
}

func (r *LogReplier) Reply(ctx context.Context, to, subject, body string) error {
	r.logger.Info(ctx, "auto-reply",
		"to", to,
		"subject", subject,
		"body_length", len(body))
	return nil
}

// Ingestor persists inbound emails and drives attachment processing and
// the auto-reply.
type Ingestor struct {
	db              *store.DB
	replier         Replier
	logger          *observability.Logger
	metrics         *observability.Metrics
	autoReply       bool
	replySubjectTag string
}

// IngestorConfig carries the dependencies for an Ingestor.
type IngestorConfig struct {
	DB      *store.DB
	Replier Replier
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// AutoReply enables the acknowledgement reply.
	AutoReply bool

	// ReplySubjectTag is prefixed to the auto-reply subject.
	// Defaults to "Re:".
	ReplySubjectTag string
}

// NewIngestor builds an Ingestor. DB and Logger are required.
func NewIngestor(cfg IngestorConfig) (*Ingestor, error) {
	if cfg.DB == nil {
		return nil, errors.New("email: store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("email: logger is required")
	}
	tag := cfg.ReplySubjectTag
	if tag == "" {
		tag = "Re:"
	}
	replier := cfg.Replier
	if replier == nil {
		replier = NewLogReplier(cfg.Logger)
	}
	return &Ingestor{
		db:              cfg.DB,
		replier:         replier,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		autoReply:       cfg.AutoReply,
		replySubjectTag: tag,
	}, nil
}

// Ingest validates and persists an inbound email, processes its
// attachments, sends the auto-reply, and marks the record processed.
// The stored record is returned.
func (i *Ingestor) Ingest(ctx context.Context, inbound InboundEmail) (*store.Email, error) {
	if strings.TrimSpace(inbound.From) == "" {
		i.countEmail("rejected")
		return nil, errors.New("email: sender address is required")
	}
	if strings.TrimSpace(inbound.To) == "" {
		i.countEmail("rejected")
		return nil, errors.New("email: recipient address is required")
	}

	attachments, err := decodeAttachments(inbound.Attachments)
	if err != nil {
		i.countEmail("rejected")
		return nil, err
	}

	record := &store.Email{
		From:     inbound.From,
		To:       inbound.To,
		CC:       inbound.CC,
		Subject:  inbound.Subject,
		TextBody: inbound.Text,
		HTMLBody: inbound.HTML,
		Headers:  inbound.Headers,
	}
	if err := i.db.SaveEmail(ctx, record, attachments); err != nil {
		i.countEmail("error")
		return nil, err
	}

	for _, att := range record.Attachments {
		i.logger.Info(ctx, "attachment received",
			"email_id", record.ID,
			"filename", att.Filename,
			"content_type", att.ContentType,
			"size", att.Size)
	}
	if len(record.Attachments) > 0 {
		if err := i.db.MarkAttachmentsProcessed(ctx, record.ID); err != nil {
			i.logger.Error(ctx, "failed to mark attachments processed",
				"email_id", record.ID, "error", err)
		}
	}

	if i.autoReply {
		if err := i.sendAutoReply(ctx, record); err != nil {
			i.logger.Error(ctx, "auto-reply failed",
				"email_id", record.ID, "error", err)
		}
	}

	if err := i.db.MarkEmailProcessed(ctx, record.ID); err != nil {
		i.countEmail("error")
		return nil, err
	}
	record.Processed = true

	i.countEmail("processed")
	i.logger.Info(ctx, "email ingested",
		"email_id", record.ID,
		"from", record.From,
		"subject", record.Subject,
		"attachments", len(record.Attachments))
	return record, nil
}

// List returns stored emails newest-first with skip/take pagination.
func (i *Ingestor) List(ctx context.Context, skip, take int) ([]store.Email, int, error) {
	return i.db.ListEmails(ctx, skip, take)
}

func (i *Ingestor) sendAutoReply(ctx context.Context, record *store.Email) error {
	subject := record.Subject
	if subject == "" {
		subject = "your message"
	}
	if !strings.HasPrefix(strings.ToLower(subject), strings.ToLower(i.replySubjectTag)) {
		subject = i.replySubjectTag + " " + subject
	}
	body := fmt.Sprintf(
		"Thank you for your message. We have received your email%s and will get back to you shortly.",
		attachmentNote(len(record.Attachments)))
	return i.replier.Reply(ctx, record.From, subject, body)
}

func attachmentNote(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return " with 1 attachment"
	default:
		return fmt.Sprintf(" with %d attachments", n)
	}
}

func decodeAttachments(inbound []InboundAttachment) ([]store.Attachment, error) {
	if len(inbound) == 0 {
		return nil, nil
	}
	attachments := make([]store.Attachment, 0, len(inbound))
	for _, att := range inbound {
		if att.Filename == "" {
			return nil, errors.New("email: attachment filename is required")
		}
		content, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, fmt.Errorf("email: decode attachment %s: %w", att.Filename, err)
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachments = append(attachments, store.Attachment{
			Filename:    att.Filename,
			ContentType: contentType,
			Content:     content,
		})
	}
	return attachments, nil
}

func (i *Ingestor) countEmail(status string) {
	if i.metrics != nil {
		i.metrics.EmailsProcessed.WithLabelValues(status).Inc()
	}
}
