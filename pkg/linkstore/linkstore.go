// Package linkstore records the durable correspondence between a relayed
// source message and each of its forwarded copies. A reply to any copy is
// re-attached on the other platform by resolving through these records.
package linkstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tinyland-inc/crosswire/pkg/relay"
	"github.com/tinyland-inc/crosswire/pkg/storage"
)

// ErrDuplicateSource is returned by Record when a record already exists
// for the same source message. Relay is at-most-once per source.
var ErrDuplicateSource = errors.New("message record already exists for source")

// ErrNotFound is returned by Resolve when no record mentions the message.
var ErrNotFound = errors.New("no message record found")

// MessageRecord ties one source message to its forwarded copies.
// Destinations are appended in send-completion order and the record is
// never mutated after the relay finishes.
type MessageRecord struct {
	ID           int64
	Bridge       string
	Source       relay.MessageRef
	Destinations []relay.MessageRef
	CreatedAt    time.Time
}

// CounterpartFor returns the native message ID that represents this record
// inside the given endpoint. Translation always goes through the record
// itself: the source when the endpoint is the origin, otherwise the copy
// delivered to that endpoint. It never chains through other records, so a
// reply to any copy lands on the true origin in exactly one hop.
func (r *MessageRecord) CounterpartFor(ep relay.Endpoint) (string, bool) {
	if r.Source.Endpoint == ep {
		return r.Source.MessageID, true
	}
	for _, dest := range r.Destinations {
		if dest.Endpoint == ep {
			return dest.MessageID, true
		}
	}
	return "", false
}

// Store is the SQLite-backed message link store.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record creates a new message record for source with the given initial
// destinations. Fails with ErrDuplicateSource when a record already exists
// for that exact source ref.
func (s *Store) Record(ctx context.Context, bridge string, source relay.MessageRef, dests []relay.MessageRef) (*MessageRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO message_records (bridge, source_platform, source_channel_id, source_message_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		bridge, string(source.Platform), source.ChannelID, source.MessageID, now.UnixMilli(),
	)
	if err != nil {
		if storage.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, source)
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("record id: %w", err)
	}

	rec := &MessageRecord{ID: id, Bridge: bridge, Source: source, CreatedAt: now}
	for i, dest := range dests {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_destinations (record_id, position, platform, channel_id, message_id)
			 VALUES (?, ?, ?, ?, ?)`,
			id, i, string(dest.Platform), dest.ChannelID, dest.MessageID,
		); err != nil {
			return nil, fmt.Errorf("insert destination: %w", err)
		}
		rec.Destinations = append(rec.Destinations, dest)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return rec, nil
}

// AppendDestination adds one more delivered copy to an existing record.
// Safe for concurrent callers on the same record: the position is assigned
// inside the write transaction and re-appending the same destination is a
// no-op.
func (s *Store) AppendDestination(ctx context.Context, recordID int64, dest relay.MessageRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM message_destinations WHERE record_id = ?`,
		recordID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_destinations (record_id, position, platform, channel_id, message_id)
		 VALUES (?, ?, ?, ?, ?)`,
		recordID, next, string(dest.Platform), dest.ChannelID, dest.MessageID,
	); err != nil {
		return fmt.Errorf("insert destination: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Resolve finds the record whose source or any destination matches the
// message observed at the given endpoint. Returns ErrNotFound when the
// message was never relayed by this process.
func (s *Store) Resolve(ctx context.Context, at relay.Endpoint, messageID string) (*MessageRecord, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM message_records
		 WHERE source_platform = ? AND source_channel_id = ? AND source_message_id = ?
		 UNION
		 SELECT record_id FROM message_destinations
		 WHERE platform = ? AND channel_id = ? AND message_id = ?
		 LIMIT 1`,
		string(at.Platform), at.ChannelID, messageID,
		string(at.Platform), at.ChannelID, messageID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve record: %w", err)
	}
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id int64) (*MessageRecord, error) {
	rec := &MessageRecord{ID: id}
	var platform string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT bridge, source_platform, source_channel_id, source_message_id, created_at
		 FROM message_records WHERE id = ?`,
		id,
	).Scan(&rec.Bridge, &platform, &rec.Source.ChannelID, &rec.Source.MessageID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	rec.Source.Platform = relay.Platform(platform)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, channel_id, message_id FROM message_destinations
		 WHERE record_id = ? ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("load destinations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dest relay.MessageRef
		var destPlatform string
		if err := rows.Scan(&destPlatform, &dest.ChannelID, &dest.MessageID); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		dest.Platform = relay.Platform(destPlatform)
		rec.Destinations = append(rec.Destinations, dest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load destinations: %w", err)
	}
	return rec, nil
}

// DeleteOlderThan removes records (and their destinations) created before
// cutoff. Used by the optional retention sweeper; the default policy keeps
// records forever so arbitrarily late replies still resolve.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM message_records WHERE created_at < ?`,
		cutoff.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	return deleted, nil
}
