package store

import (
	"strconv"
	"strings"
)

// Chat represents a cached conversation.
type Chat struct {
	ChatID             int64
	CompanionID        int64
	CompanionLogin     string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents a cached message row.
type Message struct {
	RowID         int64
	ChatID        int64
	MsgID         int64 // server-assigned; 0 for optimistic rows
	ClientID      string
	SenderID      int64
	Body          string
	AttachmentIDs []int64
	FromMe        bool
	ReadState     int // 0 unknown, 1 unread, 2 read
	Pinned        bool
	Timestamp     int64
}

// Read state values for Message.ReadState.
const (
	ReadStateUnknown = 0
	ReadStateUnread  = 1
	ReadStateRead    = 2
)

// OutboxEntry represents a recorded send attempt.
type OutboxEntry struct {
	ID            int64
	ClientMsgID   string
	ChatID        int64
	Body          string
	AttachmentIDs []int64
	Status        string // queued, sending, sent, failed
	ErrorMessage  string
	ServerMsgID   int64
}

// joinIDs encodes an id list as a comma-separated string for storage.
func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// splitIDs decodes a comma-separated id string. Malformed segments are
// skipped rather than failing the whole row.
func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
