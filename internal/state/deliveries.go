package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Delivery is the latest provider-reported status of one outbound message.
type Delivery struct {
	MessageSID string    `json:"message_sid"`
	Status     string    `json:"status"`
	Recipient  string    `json:"recipient,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RecordDelivery stores d, replacing any earlier status for the same message.
func (db *DB) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.MessageSID == "" || d.Status == "" {
		return fmt.Errorf("record delivery: message sid and status are required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO deliveries (message_sid, status, recipient, error_code, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(message_sid) DO UPDATE SET
			status = excluded.status,
			recipient = COALESCE(excluded.recipient, deliveries.recipient),
			error_code = excluded.error_code,
			updated_at = excluded.updated_at
	`, d.MessageSID, d.Status, nullString(d.Recipient), nullString(d.ErrorCode), formatTime(db.now()))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Delivery returns the stored status for a message.
func (db *DB) Delivery(ctx context.Context, sid string) (*Delivery, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var (
		d                    Delivery
		recipient, errorCode sql.NullString
		updated              string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT message_sid, status, recipient, error_code, updated_at FROM deliveries WHERE message_sid = ?
	`, sid).Scan(&d.MessageSID, &d.Status, &recipient, &errorCode, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delivery %s: %w", sid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query delivery: %w", err)
	}
	d.Recipient = recipient.String
	d.ErrorCode = errorCode.String
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse delivery time: %w", err)
	}
	return &d, nil
}
