package store

import (
	"database/sql"
	"time"
)

// Watermark returns the last dispatched mark-as-read timestamp for a chat,
// or 0 if none was ever dispatched.
func (db *DB) Watermark(chatID int64) (int64, error) {
	var until int64
	err := db.QueryRow(`SELECT until_ts FROM read_marks WHERE chat_id = ?`, chatID).Scan(&until)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return until, nil
}

// AdvanceWatermark records a dispatched mark-as-read watermark. The MAX()
// guard keeps the stored value monotonic even if callers race.
func (db *DB) AdvanceWatermark(chatID, untilTs int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO read_marks (chat_id, until_ts, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			until_ts = MAX(read_marks.until_ts, excluded.until_ts),
			updated_at = excluded.updated_at`,
		chatID, untilTs, now)
	return err
}
