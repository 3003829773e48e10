package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on chat_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (chat_id, msg_id, client_id, sender_id, body, attachment_ids, from_me, read_state, pinned, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO UPDATE SET
			client_id = excluded.client_id,
			body = excluded.body,
			read_state = excluded.read_state,
			pinned = excluded.pinned`,
		m.ChatID, m.MsgID, m.ClientID, m.SenderID, m.Body, joinIDs(m.AttachmentIDs),
		m.FromMe, m.ReadState, m.Pinned, m.Timestamp, now)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(chatID int64, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_id, msg_id, client_id, sender_id, body, attachment_ids, from_me, read_state, pinned, timestamp
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var attachments string
		if err := rows.Scan(&m.RowID, &m.ChatID, &m.MsgID, &m.ClientID, &m.SenderID, &m.Body, &attachments, &m.FromMe, &m.ReadState, &m.Pinned, &m.Timestamp); err != nil {
			return nil, err
		}
		m.AttachmentIDs = splitIDs(attachments)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteMessage removes a cached message. Called only on confirmed deletion.
func (db *DB) DeleteMessage(chatID, msgID int64) error {
	_, err := db.Exec(`DELETE FROM messages WHERE chat_id = ? AND msg_id = ?`, chatID, msgID)
	return err
}

// UpdateMessageBody rewrites a message body. Called only on confirmed edit.
func (db *DB) UpdateMessageBody(chatID, msgID int64, body string) error {
	_, err := db.Exec(`UPDATE messages SET body = ? WHERE chat_id = ? AND msg_id = ?`, body, chatID, msgID)
	return err
}

// MarkMessagesRead flips read_state to read for messages in a chat with
// timestamp <= untilTs, on the given side of the conversation.
func (db *DB) MarkMessagesRead(chatID, untilTs int64, fromMe bool) error {
	_, err := db.Exec(`
		UPDATE messages SET read_state = ?
		WHERE chat_id = ? AND from_me = ? AND timestamp <= ?`,
		ReadStateRead, chatID, fromMe, untilTs)
	return err
}

// RecomputeUnread recalculates a chat's unread counter from cached messages
// and returns the new value. It derives the counter; it never flips
// per-message read flags.
func (db *DB) RecomputeUnread(chatID int64) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE chat_id = ? AND from_me = 0 AND read_state != ?`,
		chatID, ReadStateRead).Scan(&count)
	if err != nil {
		return 0, err
	}
	_, err = db.Exec(`UPDATE chats SET unread_count = ? WHERE chat_id = ?`, count, chatID)
	return count, err
}
