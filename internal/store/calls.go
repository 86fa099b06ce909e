package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrCallNotFound is returned when a call SID has no durable record.
var ErrCallNotFound = errors.New("store: call not found")

// Call is a durable record of one telephone call.
type Call struct {
	ID        string     `json:"id"`
	CallSID   string     `json:"call_sid"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Direction string     `json:"direction"`
	Status    string     `json:"status"`
	Duration  *int       `json:"duration,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Messages []CallMessage `json:"messages,omitempty"`
}

// CallMessage is one persisted conversation turn.
type CallMessage struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCall inserts a call record for callSID if none exists. Duplicate
// webhook deliveries for the same SID leave the existing record untouched.
func (d *DB) CreateCall(ctx context.Context, callSID, from, to, direction string) error {
	if direction == "" {
		direction = "inbound"
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO calls (id, call_sid, from_number, to_number, direction, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'initiated', ?)
		ON CONFLICT (call_sid) DO NOTHING
	`, uuid.NewString(), callSID, from, to, direction, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: create call %s: %w", callSID, err)
	}
	return nil
}

// AddMessage appends a conversation turn to the call identified by callSID.
func (d *DB) AddMessage(ctx context.Context, callSID, role, content string) error {
	var callID string
	err := d.db.QueryRowContext(ctx,
		`SELECT id FROM calls WHERE call_sid = ?`, callSID).Scan(&callID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrCallNotFound, callSID)
	}
	if err != nil {
		return fmt.Errorf("store: lookup call %s: %w", callSID, err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO call_messages (id, call_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), callID, role, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: add message to call %s: %w", callSID, err)
	}
	return nil
}

// UpdateStatus records a status change. Terminal statuses also set the call's
// end time; duration is stored when the provider supplied one.
func (d *DB) UpdateStatus(ctx context.Context, callSID, status string, duration *int) error {
	var endedAt *time.Time
	switch status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		now := time.Now().UTC()
		endedAt = &now
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE calls
		SET status = ?,
		    duration = COALESCE(?, duration),
		    ended_at = COALESCE(?, ended_at)
		WHERE call_sid = ?
	`, status, duration, endedAt, callSID)
	if err != nil {
		return fmt.Errorf("store: update call %s: %w", callSID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update call %s: %w", callSID, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrCallNotFound, callSID)
	}
	return nil
}

// GetCall returns the call for callSID including its messages in order.
func (d *DB) GetCall(ctx context.Context, callSID string) (*Call, error) {
	call := &Call{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, call_sid, from_number, to_number, direction, status, duration, created_at, ended_at
		FROM calls WHERE call_sid = ?
	`, callSID).Scan(&call.ID, &call.CallSID, &call.From, &call.To,
		&call.Direction, &call.Status, &call.Duration, &call.CreatedAt, &call.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCallNotFound, callSID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get call %s: %w", callSID, err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, call_id, role, content, created_at
		FROM call_messages WHERE call_id = ? ORDER BY created_at ASC, id ASC
	`, call.ID)
	if err != nil {
		return nil, fmt.Errorf("store: get messages for %s: %w", callSID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg CallMessage
		if err := rows.Scan(&msg.ID, &msg.CallID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		call.Messages = append(call.Messages, msg)
	}
	return call, rows.Err()
}

// ListCalls returns calls ordered newest-first with skip/take pagination,
// plus the total count.
func (d *DB) ListCalls(ctx context.Context, skip, take int) ([]Call, int, error) {
	if take <= 0 {
		take = 20
	}
	if skip < 0 {
		skip = 0
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count calls: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, call_sid, from_number, to_number, direction, status, duration, created_at, ended_at
		FROM calls ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`, take, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list calls: %w", err)
	}
	defer rows.Close()

	calls := []Call{}
	for rows.Next() {
		var call Call
		if err := rows.Scan(&call.ID, &call.CallSID, &call.From, &call.To,
			&call.Direction, &call.Status, &call.Duration, &call.CreatedAt, &call.EndedAt); err != nil {
			return nil, 0, fmt.Errorf("store: scan call: %w", err)
		}
		calls = append(calls, call)
	}
	return calls, total, rows.Err()
}
