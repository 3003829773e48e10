package controller

import "strconv"

// HandleKind discriminates the ways a conversation can be referenced before
// a confirmed chat id exists.
type HandleKind int

const (
	// HandleChat references a chat whose server id is already known.
	HandleChat HandleKind = iota + 1
	// HandleCompanion references the peer's user id; the chat may not exist
	// yet and is created via chat_join on first contact.
	HandleCompanion
	// HandleLogin references the peer by login only. Legacy path: no join is
	// possible, history is addressed by login.
	HandleLogin
)

// ChatHandle is a tagged union: exactly one variant holds per selection.
type ChatHandle struct {
	Kind        HandleKind
	ChatID      int64
	CompanionID int64
	Login       string
}

// ChatRef creates a handle for a confirmed chat id.
func ChatRef(chatID int64) ChatHandle {
	return ChatHandle{Kind: HandleChat, ChatID: chatID}
}

// CompanionRef creates a handle for a peer without a known chat.
func CompanionRef(companionID int64) ChatHandle {
	return ChatHandle{Kind: HandleCompanion, CompanionID: companionID}
}

// LoginRef creates a handle for a peer known only by login.
func LoginRef(login string) ChatHandle {
	return ChatHandle{Kind: HandleLogin, Login: login}
}

// SessionKey derives the stable key selection equality is judged by. Two
// handles with the same key are the same conversation for de-duplication
// purposes.
func (h ChatHandle) SessionKey() string {
	switch h.Kind {
	case HandleChat:
		if h.ChatID != 0 {
			return "chat:" + strconv.FormatInt(h.ChatID, 10)
		}
	case HandleCompanion:
		if h.CompanionID != 0 {
			return "companion:" + strconv.FormatInt(h.CompanionID, 10)
		}
	case HandleLogin:
		if h.Login != "" {
			return "login:" + h.Login
		}
	}
	return ""
}

// FromSelection derives the strongest handle available from a chat-list
// entry's fields, in priority order: chat id, companion id, generic id,
// login. Returns false when nothing identifies the conversation.
func FromSelection(chatID, companionID, genericID int64, login string) (ChatHandle, bool) {
	switch {
	case chatID != 0:
		return ChatRef(chatID), true
	case companionID != 0:
		return CompanionRef(companionID), true
	case genericID != 0:
		return CompanionRef(genericID), true
	case login != "":
		return LoginRef(login), true
	}
	return ChatHandle{}, false
}
