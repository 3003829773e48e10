package store

import "time"

// QueueOutbox records a new send attempt.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, chat_id, body, attachment_ids, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)`,
		e.ClientMsgID, e.ChatID, e.Body, joinIDs(e.AttachmentIDs), now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message id.
func (db *DB) MarkOutboxSent(clientMsgID string, serverMsgID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ?, updated_at = ? WHERE client_msg_id = ?`, serverMsgID, now, clientMsgID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
// Failed entries stay failed; retry is a fresh send, never automatic.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_msg_id = ?`, errMsg, now, clientMsgID)
	return err
}

// PendingOutbox returns entries that were queued but never dispatched,
// typically because the daemon crashed mid-send.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	return db.listOutbox(`status = 'queued'`)
}

// InterruptedOutbox returns entries a previous run left mid-dispatch.
func (db *DB) InterruptedOutbox() ([]OutboxEntry, error) {
	return db.listOutbox(`status IN ('queued', 'sending')`)
}

// FailedOutbox returns entries whose dispatch was rejected.
func (db *DB) FailedOutbox() ([]OutboxEntry, error) {
	return db.listOutbox(`status = 'failed'`)
}

func (db *DB) listOutbox(where string) ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, chat_id, body, attachment_ids, status, error_message, server_msg_id
		FROM outbox WHERE ` + where + ` ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var attachments string
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ChatID, &e.Body, &attachments, &e.Status, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		e.AttachmentIDs = splitIDs(attachments)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
