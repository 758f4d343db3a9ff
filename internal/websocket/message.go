package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always outputs RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
	MessageTypeAuth   = "auth"

	// Live views
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeSubscribed  = "subscribed"
	MessageTypeUpdate      = "update"

	// Optimistic mutations on an open view
	MessageTypeToggleReaction = "toggle_reaction"
	MessageTypeDeleteComment  = "delete_comment"

	// Presence messages
	MessageTypePresence    = "presence"
	MessageTypeUserOnline  = "user_online"
	MessageTypeUserOffline = "user_offline"

	// Pushed as soon as a notification is written
	MessageTypeNotification = "notification"
	MessageTypeAward        = "award"
)

// AwardPayload tells a user about XP or badges they just earned
type AwardPayload struct {
	Reason    string   `json:"reason"`
	Points    int64    `json:"points"`
	NewBadges []string `json:"newBadges,omitempty"`
}

// View names a client can subscribe to
const (
	ViewReview        = "review"
	ViewComments      = "comments"
	ViewConversation  = "conversation"
	ViewNotifications = "notifications"
)

// Message represents a WebSocket message
type Message struct {
	// Type identifies the message type for routing
	Type string `json:"type"`

	// Payload contains the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is a unique message identifier for acknowledgment
	ID string `json:"id,omitempty"`

	// ReplyTo references the original message ID for responses
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp when the message was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ReplyTo:   original.ID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// AuthPayload represents authentication message payload
type AuthPayload struct {
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"` // "authenticated", "profile_loaded"
}

// SubscribePayload opens a view. Key is the client's handle for the view
// and is echoed on every update; it defaults to "{view}:{id}".
type SubscribePayload struct {
	Key  string `json:"key,omitempty"`
	View string `json:"view"`
	ID   string `json:"id,omitempty"`
}

// UpdatePayload carries the latest state of an open view
type UpdatePayload struct {
	Key  string      `json:"key"`
	View string      `json:"view"`
	Data interface{} `json:"data"`
}

// ReactionPayload toggles a reaction through an open review view
type ReactionPayload struct {
	Key   string `json:"key"`
	Emoji string `json:"emoji"`
}

// DeleteCommentPayload deletes a comment through an open comments view
type DeleteCommentPayload struct {
	Key       string `json:"key"`
	CommentID string `json:"comment_id"`
}

// PresencePayload reports focus and connectivity from the client, and
// online state of followed users from the server
type PresencePayload struct {
	UserID    string `json:"user_id,omitempty"`
	Status    string `json:"status,omitempty"` // "online", "offline"
	Focused   *bool  `json:"focused,omitempty"`
	Online    *bool  `json:"online,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SystemPayload represents system event payloads
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
