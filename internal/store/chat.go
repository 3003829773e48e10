package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, companion_id, companion_login, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			companion_id = CASE WHEN excluded.companion_id != 0 THEN excluded.companion_id ELSE chats.companion_id END,
			companion_login = CASE WHEN excluded.companion_login != '' THEN excluded.companion_login ELSE chats.companion_login END,
			unread_count = excluded.unread_count,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.ChatID, c.CompanionID, c.CompanionLogin, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// GetChat returns a single chat by id, or nil if unknown.
func (db *DB) GetChat(chatID int64) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT chat_id, companion_id, companion_login, unread_count, last_message_at, last_message_preview
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.CompanionID, &c.CompanionLogin, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatByCompanion returns the chat id previously recorded for a companion,
// or 0 if none is known. Used by the selection resolver to avoid a join
// round-trip for companions contacted in an earlier run.
func (db *DB) ChatByCompanion(companionID int64) (int64, error) {
	var chatID int64
	err := db.QueryRow(`SELECT chat_id FROM chats WHERE companion_id = ? ORDER BY updated_at DESC LIMIT 1`,
		companionID).Scan(&chatID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return chatID, nil
}

// ListChats returns chats sorted by last message timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, companion_id, companion_login, unread_count, last_message_at, last_message_preview
		FROM chats
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ChatID, &c.CompanionID, &c.CompanionLogin, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
