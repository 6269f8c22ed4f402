package store

import (
	"context"
	"fmt"
	"time"
)

// BookingRecord is a confirmed booking. Customer details are deliberately
// absent; the calendar event holds them.
type BookingRecord struct {
	EventID   string
	ServiceID string
	SlotStart time.Time
	CreatedAt time.Time
}

// BookingLog is an append-only ledger of confirmed bookings.
type BookingLog struct {
	db *DB
}

// NewBookingLog creates a booking ledger using the given database.
func NewBookingLog(db *DB) *BookingLog {
	return &BookingLog{db: db}
}

// Record appends a booking. Re-recording an event id is a no-op.
func (b *BookingLog) Record(ctx context.Context, rec BookingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := b.db.sql.ExecContext(ctx,
		`INSERT INTO bookings (event_id, service_id, slot_start, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(event_id) DO NOTHING`,
		rec.EventID, rec.ServiceID,
		rec.SlotStart.UTC().Format(time.RFC3339), rec.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("recording booking %s: %w", rec.EventID, err)
	}
	return nil
}

// Count returns the number of recorded bookings.
func (b *BookingLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting bookings: %w", err)
	}
	return n, nil
}

// Recent returns up to limit bookings, newest slot first.
func (b *BookingLog) Recent(ctx context.Context, limit int) ([]BookingRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := b.db.sql.QueryContext(ctx,
		`SELECT event_id, service_id, slot_start, created_at FROM bookings
		 ORDER BY slot_start DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	defer rows.Close()

	var out []BookingRecord
	for rows.Next() {
		var rec BookingRecord
		var slotStart, createdAt string
		if err := rows.Scan(&rec.EventID, &rec.ServiceID, &slotStart, &createdAt); err != nil {
			return nil, err
		}
		rec.SlotStart, _ = time.Parse(time.RFC3339, slotStart)
		rec.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
