// Package push delivers device notifications
package push

import (
	"context"
	"errors"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/logger"
	"github.com/cinesync/backend/internal/telemetry"
)

// ErrInvalidToken means the device token is no longer registered and should
// be forgotten
var ErrInvalidToken = errors.New("push token is not registered")

// Message is one device notification. Data always carries a "link" the
// client opens on tap.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Sender delivers a message to one device token
type Sender interface {
	Send(ctx context.Context, token string, msg Message) error
}

// FCMSender sends through Firebase Cloud Messaging
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender creates a sender from an initialised firebase app
func NewFCMSender(ctx context.Context, app *firebase.App) (*FCMSender, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) Send(ctx context.Context, token string, msg Message) (err error) {
	ctx, span := telemetry.TraceExternalCall(ctx, "fcm", "send")
	defer func() { telemetry.End(span, err) }()

	id, err := s.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			return ErrInvalidToken
		}
		return err
	}
	logger.Log.Debug("Push sent", zap.String("message_id", id))
	return nil
}

// Recorder keeps sent messages in memory. The server uses it when push is
// not configured; tests use it to assert deliveries.
type Recorder struct {
	mu   sync.Mutex
	sent []Delivery
	// Fail, when set, is returned for every send
	Fail error
}

// Delivery is one recorded send
type Delivery struct {
	Token   string
	Message Message
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(ctx context.Context, token string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.sent = append(r.sent, Delivery{Token: token, Message: msg})
	logger.Log.Debug("Push recorded", zap.String("title", msg.Title), zap.String("link", msg.Data["link"]))
	return nil
}

// Sent returns a copy of every recorded delivery
func (r *Recorder) Sent() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.sent...)
}
