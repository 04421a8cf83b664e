package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or refreshes a conversation row. The last
// message columns only move forward in time.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (key, kind, peer_id, group_id, name, trip_id, is_owner, muted, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE conversations.name END,
			trip_id = CASE WHEN excluded.trip_id != '' THEN excluded.trip_id ELSE conversations.trip_id END,
			is_owner = excluded.is_owner,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at > conversations.last_message_at
				THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.Key, c.Kind, c.PeerID, c.GroupID, c.Name, c.TripID, c.IsOwner, c.Muted,
		c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// TouchLastMessage advances a conversation's last message columns without
// touching identity metadata.
func (db *DB) TouchLastMessage(key string, sentAt int64, preview string) error {
	now := time.Now().UnixMilli()
	// SET expressions see the pre-update row, so the preview compare uses
	// the old last_message_at.
	_, err := db.Exec(`
		UPDATE conversations SET
			last_message_preview = CASE WHEN ? >= last_message_at THEN ? ELSE last_message_preview END,
			last_message_at = MAX(last_message_at, ?),
			updated_at = ?
		WHERE key = ?`,
		sentAt, preview, sentAt, now, key)
	return err
}

// GetConversation returns a single conversation by key, nil when absent.
func (db *DB) GetConversation(key string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT key, kind, peer_id, group_id, name, trip_id, is_owner, muted, last_message_at, last_message_preview
		FROM conversations WHERE key = ?`, key).
		Scan(&c.Key, &c.Kind, &c.PeerID, &c.GroupID, &c.Name, &c.TripID, &c.IsOwner, &c.Muted, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns conversations sorted by last message timestamp descending.
func (db *DB) ListConversations() ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT key, kind, peer_id, group_id, name, trip_id, is_owner, muted, last_message_at, last_message_preview
		FROM conversations
		ORDER BY last_message_at DESC, key ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.Key, &c.Kind, &c.PeerID, &c.GroupID, &c.Name, &c.TripID, &c.IsOwner, &c.Muted, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// SetMuted updates the local notification suppression flag for a conversation.
func (db *DB) SetMuted(key string, muted bool) error {
	_, err := db.Exec(`UPDATE conversations SET muted = ?, updated_at = ? WHERE key = ?`,
		muted, time.Now().UnixMilli(), key)
	return err
}
