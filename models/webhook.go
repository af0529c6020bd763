package models

// WebhookPayload is the envelope Chatwork POSTs to the webhook endpoint.
type WebhookPayload struct {
	EventType string        `json:"webhook_event_type"`
	Event     *WebhookEvent `json:"webhook_event"`
}

// WebhookEvent carries the message fields of a webhook delivery. Message
// events use account_id, mention events use from_account_id.
type WebhookEvent struct {
	MessageID     string `json:"message_id"`
	RoomID        int64  `json:"room_id"`
	AccountID     int64  `json:"account_id"`
	FromAccountID int64  `json:"from_account_id"`
	Body          string `json:"body"`
	SendTime      int64  `json:"send_time"`
}

// SenderID returns whichever account field the event type populated.
func (e *WebhookEvent) SenderID() int64 {
	if e.AccountID != 0 {
		return e.AccountID
	}
	return e.FromAccountID
}
