// Package handlers wires the HTTP surface: the Chatwork webhook endpoint,
// the liveness probe and the WebSocket event feed.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"chatwork-bot/models"
	"chatwork-bot/moderation"
	"chatwork-bot/ranking"
)

// Moderator screens inbound events for spam before commands run.
type Moderator interface {
	Check(ev models.MessageEvent) moderation.Action
}

// Dispatcher routes a message event to a bot command. It reports whether a
// command handled the event.
type Dispatcher interface {
	Dispatch(ev models.MessageEvent) bool
}

// Deduper filters webhook deliveries Chatwork retried.
type Deduper interface {
	MarkProcessed(messageID string) (bool, error)
}

// WebhookHandler processes Chatwork webhook deliveries.
type WebhookHandler struct {
	db         DBManager
	moderator  Moderator
	dispatcher Dispatcher
	dedup      Deduper
	hub        *Hub
	botID      int64
}

func NewWebhookHandler(db DBManager, moderator Moderator, dispatcher Dispatcher, dedup Deduper, hub *Hub, botID int64) *WebhookHandler {
	return &WebhookHandler{
		db:         db,
		moderator:  moderator,
		dispatcher: dispatcher,
		dedup:      dedup,
		hub:        hub,
		botID:      botID,
	}
}

// handledEventTypes are the webhook event types that carry a message.
var handledEventTypes = map[string]bool{
	"message_created": true,
	"mention_to_me":   true,
}

// HandleWebhook is the POST /webhook endpoint. Chatwork expects a 2xx
// quickly; anything else triggers retries, so unknown event types are
// acknowledged rather than rejected.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if payload.Event == nil || payload.Event.MessageID == "" || payload.Event.RoomID == 0 || payload.Event.SenderID() == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing event fields"})
		return
	}

	if !handledEventTypes[payload.EventType] {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	first, err := h.dedup.MarkProcessed(payload.Event.MessageID)
	if err != nil {
		log.Err(err).Msg("dedup check failed")
	} else if !first {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	ev := models.MessageEvent{
		SenderID:  payload.Event.SenderID(),
		RoomID:    payload.Event.RoomID,
		MessageID: payload.Event.MessageID,
		Body:      payload.Event.Body,
		Timestamp: eventTime(payload.Event.SendTime),
	}

	h.hub.Broadcast("message", ev)

	// The bot's own posts come back through the webhook too.
	if ev.SenderID == h.botID {
		c.JSON(http.StatusOK, gin.H{"status": "self"})
		return
	}

	if h.moderator.Check(ev) == moderation.ActionDowngraded {
		c.JSON(http.StatusOK, gin.H{"status": "moderated"})
		return
	}

	if h.dispatcher.Dispatch(ev) {
		c.JSON(http.StatusOK, gin.H{"status": "handled"})
		return
	}

	// Ordinary chatter feeds the per-room daily ranking.
	if err := h.db.IncrementMessageCount(ev.RoomID, ev.SenderID, ranking.DayKey(ev.Timestamp)); err != nil {
		log.Err(err).Int64("room", ev.RoomID).Msg("incrementing message count failed")
	}

	c.JSON(http.StatusOK, gin.H{"status": "counted"})
}

// HandleLiveness is the GET /webhook probe Chatwork's endpoint check hits.
func (h *WebhookHandler) HandleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func eventTime(sendTime int64) time.Time {
	if sendTime == 0 {
		return time.Now()
	}
	return time.Unix(sendTime, 0)
}
