package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds are dot-separated; the leading segment is the namespace
// subscribers filter on.
const (
	// Inbound gateway events, published by the socket client.
	KindGatewayMessage       = "gateway.message"
	KindGatewayDeleted       = "gateway.message_deleted"
	KindGatewayEdited        = "gateway.message_edited"
	KindGatewayPinned        = "gateway.message_pinned"
	KindGatewayUnpinned      = "gateway.message_unpinned"
	KindGatewayRead          = "gateway.message_read"
	KindGatewayStatusChanged = "gateway.status_changed"

	// Outbound send reconciliation, published by the outbox dispatcher.
	KindSendAck    = "message.send_ack"
	KindSendFailed = "message.send_failed"

	// Controller failure channel. Failures are converted to events here
	// instead of escaping async operations.
	KindChatError = "chat.error"
)
