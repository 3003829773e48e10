package history

import "github.com/vlad23451/syrup/internal/store"

// ReadState is the tri-state read flag carried by inbound events. Legacy
// events may omit it entirely, which is distinct from "unread".
type ReadState int8

const (
	ReadUnknown ReadState = iota
	Unread
	Read
)

// Message is a single chat message as held by the history store.
// A message with ID == 0 is an optimistic placeholder awaiting server
// confirmation; it is replaced, never merged, when the confirming event
// arrives.
type Message struct {
	ID            int64
	ClientID      string
	ChatID        int64
	SenderID      int64
	Text          string
	AttachmentIDs []int64
	Timestamp     int64 // unix milliseconds
	FromMe        bool
	Read          ReadState
	Pinned        bool
}

// Confirmed reports whether the message carries a server-assigned id.
func (m Message) Confirmed() bool { return m.ID != 0 }

// Attachment is a pre-upload descriptor returned by the file collaborator.
type Attachment struct {
	FileID      int64
	Name        string
	Uploaded    bool
	UploadError string
}

// Eligible reports whether the attachment may be referenced by a send.
func (a Attachment) Eligible() bool {
	return a.Uploaded && a.UploadError == "" && a.FileID != 0
}

// Cache is the persistence surface the store writes through to. A nil cache
// is valid (pure in-memory operation, used by tests).
type Cache interface {
	UpsertMessage(*store.Message) error
	DeleteMessage(chatID, msgID int64) error
	UpdateMessageBody(chatID, msgID int64, body string) error
	SetPinned(chatID, msgID int64, pinned bool) error
	MarkMessagesRead(chatID, untilTs int64, fromMe bool) error
}

func cacheRow(m Message) *store.Message {
	return &store.Message{
		ChatID:        m.ChatID,
		MsgID:         m.ID,
		ClientID:      m.ClientID,
		SenderID:      m.SenderID,
		Body:          m.Text,
		AttachmentIDs: m.AttachmentIDs,
		FromMe:        m.FromMe,
		ReadState:     int(m.Read),
		Pinned:        m.Pinned,
		Timestamp:     m.Timestamp,
	}
}
