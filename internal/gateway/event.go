package gateway

import (
	"encoding/json"

	"github.com/vlad23451/syrup/internal/history"
)

// Envelope is the JSON frame exchanged with the gateway. cid is a client
// generated correlation id; the server echoes it on acks so overlapping
// operations on the same chat stay distinguishable.
type Envelope struct {
	Op   string          `json:"op"`
	CID  string          `json:"cid,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Client-to-server op codes.
const (
	opHeartbeat     = "heartbeat"
	opChatJoin      = "chat_join"
	opMessageSend   = "message_send"
	opMessageRead   = "message_read"
	opMessageDelete = "message_delete"
	opMessageEdit   = "message_edit"
	opMessagePin    = "message_pin"
	opMessageUnpin  = "message_unpin"
)

// Server-to-client op codes.
const (
	opHeartbeatAck    = "heartbeat_ack"
	opChatJoinAck     = "chat_join_ack"
	opMessageAck      = "message_ack"
	opMessageNew      = "message_new"
	opMessageDeleted  = "message_deleted"
	opMessageEdited   = "message_edited"
	opMessagePinned   = "message_pinned"
	opMessageUnpinned = "message_unpinned"
	opMessageReadDone = "message_read_done"
	opError           = "error"
)

// PinScopeAll makes a pin visible to every chat participant.
const PinScopeAll = "all"

type joinChatData struct {
	CompanionID int64 `json:"companion_id"`
}

type joinChatAck struct {
	ChatID int64 `json:"chat_id"`
}

type sendMessageData struct {
	ClientID      string  `json:"client_id"`
	SenderID      int64   `json:"sender_id"`
	ChatID        int64   `json:"chat_id"`
	Text          string  `json:"text"`
	AttachmentIDs []int64 `json:"attachment_ids,omitempty"`
}

type messageAck struct {
	Accepted  bool   `json:"accepted"`
	MessageID int64  `json:"message_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type markReadData struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
	Until  int64 `json:"until"`
}

type deleteData struct {
	MessageIDs []int64 `json:"message_ids"`
}

type editData struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type pinData struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Scope     string `json:"scope,omitempty"`
}

type errorData struct {
	Message string `json:"message"`
}

// wireMessage is the inbound message event payload. is_read is optional:
// legacy events omit it, which maps to the unknown read state.
type wireMessage struct {
	ID            int64   `json:"id"`
	ClientID      string  `json:"client_id,omitempty"`
	ChatID        int64   `json:"chat_id"`
	SenderID      int64   `json:"sender_id"`
	Text          string  `json:"text"`
	AttachmentIDs []int64 `json:"attachment_ids,omitempty"`
	Timestamp     int64   `json:"timestamp"`
	IsRead        *bool   `json:"is_read,omitempty"`
	Pinned        bool    `json:"pinned,omitempty"`
}

// toMessage converts a wire event into the domain message. fromMe is derived
// from the authenticated user id, never trusted from the wire.
func (w wireMessage) toMessage(userID int64) history.Message {
	read := history.ReadUnknown
	if w.IsRead != nil {
		if *w.IsRead {
			read = history.Read
		} else {
			read = history.Unread
		}
	}
	return history.Message{
		ID:            w.ID,
		ClientID:      w.ClientID,
		ChatID:        w.ChatID,
		SenderID:      w.SenderID,
		Text:          w.Text,
		AttachmentIDs: w.AttachmentIDs,
		Timestamp:     w.Timestamp,
		FromMe:        w.SenderID == userID,
		Read:          read,
		Pinned:        w.Pinned,
	}
}

// DeletedEvent is the bus payload for confirmed deletions.
type DeletedEvent struct {
	ChatID     int64
	MessageIDs []int64
}

// EditedEvent is the bus payload for confirmed edits.
type EditedEvent struct {
	ChatID    int64
	MessageID int64
	Text      string
}

// PinEvent is the bus payload for pin/unpin confirmations.
type PinEvent struct {
	ChatID    int64
	MessageID int64
}

// ReadEvent is the bus payload for read receipts observed on the stream.
type ReadEvent struct {
	ChatID int64
	UserID int64
	Until  int64
}

func marshalData(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
