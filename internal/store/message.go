package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertConfirmed appends a server-confirmed message. The insert is
// idempotent on (conv_key, server_id): a duplicate id is a no-op and the
// returned bool reports whether a row was actually added, so overlapping
// fetches converge to a single copy.
func (db *DB) InsertConfirmed(m *Message) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO messages (conv_key, server_id, sender_id, content, sent_at, viewed, pending, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(conv_key, server_id) WHERE server_id IS NOT NULL DO NOTHING`,
		m.ConvKey, m.ServerID, m.SenderID, m.Content, m.SentAt, m.Viewed, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertOptimistic appends a not-yet-confirmed outgoing message.
func (db *DB) InsertOptimistic(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (conv_key, temp_id, sender_id, content, sent_at, viewed, pending, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 1, ?)`,
		m.ConvKey, m.TempID, m.SenderID, m.Content, m.SentAt, time.Now().UnixMilli())
	return err
}

// ReplaceOptimistic swaps a pending message for its server-confirmed
// counterpart. If the canonical record already arrived through a poll, the
// optimistic row is dropped instead so no duplicate remains.
func (db *DB) ReplaceOptimistic(tempID string, confirmed *Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(1) FROM messages WHERE conv_key = ? AND server_id = ?`,
		confirmed.ConvKey, confirmed.ServerID).Scan(&exists)
	if err != nil {
		return err
	}

	if exists > 0 {
		if _, err := tx.Exec(`DELETE FROM messages WHERE temp_id = ?`, tempID); err != nil {
			return err
		}
	} else {
		res, err := tx.Exec(`
			UPDATE messages
			SET server_id = ?, temp_id = NULL, sent_at = ?, viewed = ?, pending = 0
			WHERE temp_id = ?`,
			confirmed.ServerID, confirmed.SentAt, confirmed.Viewed, tempID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no pending message with temp id %s", tempID)
		}
	}

	return tx.Commit()
}

// RemoveOptimistic retracts a pending message after a failed send. Reports
// whether a row was removed.
func (db *DB) RemoveOptimistic(tempID string) (bool, error) {
	res, err := db.Exec(`DELETE FROM messages WHERE temp_id = ? AND pending = 1`, tempID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMessages returns a conversation's full history ordered by sent_at
// ascending, optimistic messages after confirmed ones among equal
// timestamps, remaining ties broken by server id.
func (db *DB) ListMessages(convKey string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, conv_key, COALESCE(server_id, 0), COALESCE(temp_id, ''), sender_id, content, sent_at, viewed, pending
		FROM messages
		WHERE conv_key = ?
		ORDER BY sent_at ASC, pending ASC, COALESCE(server_id, 0) ASC, id ASC`, convKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConvKey, &m.ServerID, &m.TempID, &m.SenderID, &m.Content, &m.SentAt, &m.Viewed, &m.Pending); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MaxServerID returns the highest confirmed message id in a conversation,
// or 0 when none exist.
func (db *DB) MaxServerID(convKey string) (int64, error) {
	var max sql.NullInt64
	err := db.QueryRow(`SELECT MAX(server_id) FROM messages WHERE conv_key = ?`, convKey).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// MarkAllViewed flips the viewed flag on every message in a conversation.
// Read receipts are optimistic-only locally, so there is no inverse.
func (db *DB) MarkAllViewed(convKey string) error {
	_, err := db.Exec(`UPDATE messages SET viewed = 1 WHERE conv_key = ? AND viewed = 0`, convKey)
	return err
}
