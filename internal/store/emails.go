package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmailNotFound is returned when an email ID has no record.
var ErrEmailNotFound = errors.New("store: email not found")

// Email is a durable record of one inbound email.
type Email struct {
	ID          string            `json:"id"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	CC          string            `json:"cc,omitempty"`
	Subject     string            `json:"subject"`
	TextBody    string            `json:"text_body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
	Processed   bool              `json:"processed"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is one decoded email attachment.
type Attachment struct {
	ID          string `json:"id"`
	EmailID     string `json:"email_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
	Processed   bool   `json:"processed"`
}

// SaveEmail persists an email and its attachments in one transaction,
// assigning IDs and the received timestamp. The generated ID is written back
// to the email.
func (d *DB) SaveEmail(ctx context.Context, email *Email, attachments []Attachment) error {
	if email == nil {
		return errors.New("store: email is required")
	}

	email.ID = uuid.NewString()
	email.ReceivedAt = time.Now().UTC()

	headers, err := json.Marshal(email.Headers)
	if err != nil {
		return fmt.Errorf("store: encode headers: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO emails (id, from_address, to_address, cc_address, subject, text_body, html_body, headers, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, email.ID, email.From, email.To, email.CC, email.Subject,
		email.TextBody, email.HTMLBody, string(headers), email.ReceivedAt)
	if err != nil {
		return fmt.Errorf("store: insert email: %w", err)
	}

	for i := range attachments {
		att := &attachments[i]
		att.ID = uuid.NewString()
		att.EmailID = email.ID
		att.Size = len(att.Content)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attachments (id, email_id, filename, content_type, size, content)
			VALUES (?, ?, ?, ?, ?, ?)
		`, att.ID, att.EmailID, att.Filename, att.ContentType, att.Size, att.Content)
		if err != nil {
			return fmt.Errorf("store: insert attachment %s: %w", att.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit email: %w", err)
	}
	email.Attachments = attachments
	return nil
}

// MarkEmailProcessed flags an email as processed with the current time.
func (d *DB) MarkEmailProcessed(ctx context.Context, emailID string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE emails SET processed = 1, processed_at = ? WHERE id = ?
	`, time.Now().UTC(), emailID)
	if err != nil {
		return fmt.Errorf("store: mark email %s processed: %w", emailID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: mark email %s processed: %w", emailID, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrEmailNotFound, emailID)
	}
	return nil
}

// MarkAttachmentsProcessed flags all attachments of an email as processed.
func (d *DB) MarkAttachmentsProcessed(ctx context.Context, emailID string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE attachments SET processed = 1 WHERE email_id = ?`, emailID)
	if err != nil {
		return fmt.Errorf("store: mark attachments for %s processed: %w", emailID, err)
	}
	return nil
}

// ListEmails returns emails newest-first with skip/take pagination, plus the
// total count. Attachment contents are not loaded.
func (d *DB) ListEmails(ctx context.Context, skip, take int) ([]Email, int, error) {
	if take <= 0 {
		take = 50
	}
	if skip < 0 {
		skip = 0
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count emails: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, from_address, to_address, cc_address, subject, text_body, html_body, headers, received_at, processed, processed_at
		FROM emails ORDER BY received_at DESC, id DESC LIMIT ? OFFSET ?
	`, take, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list emails: %w", err)
	}
	defer rows.Close()

	emails := []Email{}
	for rows.Next() {
		var email Email
		var cc, text, html, headers sql.NullString
		var processed int
		if err := rows.Scan(&email.ID, &email.From, &email.To, &cc, &email.Subject,
			&text, &html, &headers, &email.ReceivedAt, &processed, &email.ProcessedAt); err != nil {
			return nil, 0, fmt.Errorf("store: scan email: %w", err)
		}
		email.CC = cc.String
		email.TextBody = text.String
		email.HTMLBody = html.String
		email.Processed = processed != 0
		if headers.String != "" {
			if err := json.Unmarshal([]byte(headers.String), &email.Headers); err != nil {
				return nil, 0, fmt.Errorf("store: decode headers for %s: %w", email.ID, err)
			}
		}
		emails = append(emails, email)
	}
	return emails, total, rows.Err()
}

// EmailAttachments returns the attachments stored for an email, without
// their binary contents.
func (d *DB) EmailAttachments(ctx context.Context, emailID string) ([]Attachment, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, email_id, filename, content_type, size, processed
		FROM attachments WHERE email_id = ? ORDER BY filename ASC
	`, emailID)
	if err != nil {
		return nil, fmt.Errorf("store: attachments for %s: %w", emailID, err)
	}
	defer rows.Close()

	atts := []Attachment{}
	for rows.Next() {
		var att Attachment
		var processed int
		if err := rows.Scan(&att.ID, &att.EmailID, &att.Filename, &att.ContentType, &att.Size, &processed); err != nil {
			return nil, fmt.Errorf("store: scan attachment: %w", err)
		}
		att.Processed = processed != 0
		atts = append(atts, att)
	}
	return atts, rows.Err()
}
