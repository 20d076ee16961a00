package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medifind/internal/notify"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
)

var ErrNoDeviceToken = errors.New("device token is empty")

type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendDryRun(ctx context.Context, message *messaging.Message) (string, error)
}

type FirebaseService struct {
	client messenger
	log    logrus.FieldLogger
}

// NewFirebaseService creates the FCM client of an initialized Firebase app.
func NewFirebaseService(ctx context.Context, app *firebase.App, log logrus.FieldLogger) (*FirebaseService, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %w", err)
	}

	log.Info("✅ Firebase messaging initialized")
	return &FirebaseService{client: client, log: log}, nil
}

func channelPriority(channel string) (string, messaging.AndroidNotificationPriority) {
	if channel == "consultations" {
		return "high", messaging.PriorityHigh
	}
	return "normal", messaging.PriorityDefault
}

// SendNotification delivers n to one device.
func (s *FirebaseService) SendNotification(ctx context.Context, deviceToken string, n notify.Notification) error {
	if deviceToken == "" {
		return ErrNoDeviceToken
	}

	data := map[string]string{
		"notificationId": n.ID,
		"timestamp":      fmt.Sprintf("%d", time.Now().Unix()),
	}
	for k, v := range n.Data {
		data[k] = v
	}

	priority, notificationPriority := channelPriority(n.Channel)
	message := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: priority,
			Notification: &messaging.AndroidNotification{
				Sound:        "default",
				Priority:     notificationPriority,
				ChannelID:    "medifind_" + n.Channel,
				DefaultSound: true,
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending push %s: %w", n.ID, err)
	}

	s.log.WithFields(logrus.Fields{"id": n.ID, "message_id": response}).Debug("🚀 Push sent")
	return nil
}

// ValidateToken reports whether FCM accepts the device token, without delivering anything.
func (s *FirebaseService) ValidateToken(ctx context.Context, deviceToken string) bool {
	if deviceToken == "" {
		return false
	}

	message := &messaging.Message{
		Token: deviceToken,
		Data:  map[string]string{"type": "token_validation"},
		Android: &messaging.AndroidConfig{
			Priority: "normal",
		},
	}

	if _, err := s.client.SendDryRun(ctx, message); err != nil {
		prefix := deviceToken
		if len(prefix) > 10 {
			prefix = prefix[:10]
		}
		s.log.WithError(err).Warnf("❌ ValidateToken failed for token %s...", prefix)
		return false
	}
	return true
}

// IsInvalidTokenError reports whether FCM rejected the token itself.
func IsInvalidTokenError(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
}

// DeviceSender sends notifications to whatever device token is current.
type DeviceSender struct {
	service *FirebaseService
	token   func() string
	// onInvalidToken is called when FCM rejects the current token.
	onInvalidToken func(token string)
}

func NewDeviceSender(service *FirebaseService, token func() string, onInvalidToken func(string)) *DeviceSender {
	return &DeviceSender{service: service, token: token, onInvalidToken: onInvalidToken}
}

func (d *DeviceSender) Send(ctx context.Context, n notify.Notification) error {
	token := d.token()
	err := d.service.SendNotification(ctx, token, n)
	if err != nil && IsInvalidTokenError(err) && d.onInvalidToken != nil {
		d.onInvalidToken(token)
	}
	return err
}

func (d *DeviceSender) Authorize(ctx context.Context) (bool, error) {
	return d.service.ValidateToken(ctx, d.token()), nil
}

// LogSender writes notifications to the log. It is used when push delivery is not configured.
type LogSender struct {
	Log logrus.FieldLogger
}

func (l LogSender) Send(_ context.Context, n notify.Notification) error {
	l.Log.WithFields(logrus.Fields{"id": n.ID, "title": n.Title}).Info("🔔 " + n.Body)
	return nil
}

func (l LogSender) Authorize(context.Context) (bool, error) { return true, nil }
