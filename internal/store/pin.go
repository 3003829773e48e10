package store

import "time"

// SetPinned records or clears pin state for a message, keeping the pins
// table and the message row in agreement.
func (db *DB) SetPinned(chatID, msgID int64, pinned bool) error {
	if pinned {
		now := time.Now().UnixMilli()
		if _, err := db.Exec(`
			INSERT INTO pins (chat_id, msg_id, pinned_at) VALUES (?, ?, ?)
			ON CONFLICT(chat_id, msg_id) DO NOTHING`, chatID, msgID, now); err != nil {
			return err
		}
	} else {
		if _, err := db.Exec(`DELETE FROM pins WHERE chat_id = ? AND msg_id = ?`, chatID, msgID); err != nil {
			return err
		}
	}
	_, err := db.Exec(`UPDATE messages SET pinned = ? WHERE chat_id = ? AND msg_id = ?`, pinned, chatID, msgID)
	return err
}

// ListPins returns the pinned message ids for a chat in pin order.
func (db *DB) ListPins(chatID int64) ([]int64, error) {
	rows, err := db.Query(`SELECT msg_id FROM pins WHERE chat_id = ? ORDER BY pinned_at ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
