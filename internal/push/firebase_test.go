package push

import (
	"context"
	"errors"
	"io"
	"testing"

	"medifind/internal/notify"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
)

type fakeMessenger struct {
	sent    []*messaging.Message
	dryRuns int
	err     error
}

func (f *fakeMessenger) Send(_ context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/medifind/messages/1", nil
}

func (f *fakeMessenger) SendDryRun(_ context.Context, _ *messaging.Message) (string, error) {
	f.dryRuns++
	if f.err != nil {
		return "", f.err
	}
	return "dry-run", nil
}

func newTestService(m *fakeMessenger) *FirebaseService {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &FirebaseService{client: m, log: log}
}

func TestSendNotificationBuildsMessage(t *testing.T) {
	m := &fakeMessenger{}
	svc := newTestService(m)

	n := notify.Notification{
		ID:      "consultation_c1",
		Title:   "Upcoming consultation",
		Body:    "Starts at 09:00",
		Channel: "consultations",
		Data:    map[string]string{"consultationId": "c1"},
	}
	if err := svc.SendNotification(context.Background(), "token-123", n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(m.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(m.sent))
	}
	msg := m.sent[0]
	if msg.Token != "token-123" || msg.Notification.Title != n.Title {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Data["consultationId"] != "c1" || msg.Data["notificationId"] != n.ID {
		t.Fatalf("unexpected data: %v", msg.Data)
	}
	if msg.Android.Priority != "high" || msg.Android.Notification.ChannelID != "medifind_consultations" {
		t.Fatalf("unexpected android config: %+v", msg.Android)
	}
}

func TestSendNotificationWithoutToken(t *testing.T) {
	m := &fakeMessenger{}
	svc := newTestService(m)
	if err := svc.SendNotification(context.Background(), "", notify.Notification{ID: "x"}); !errors.Is(err, ErrNoDeviceToken) {
		t.Fatalf("expected ErrNoDeviceToken, got %v", err)
	}
	if len(m.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestDeviceSenderAuthorize(t *testing.T) {
	m := &fakeMessenger{}
	token := ""
	sender := NewDeviceSender(newTestService(m), func() string { return token }, nil)

	if ok, _ := sender.Authorize(context.Background()); ok {
		t.Fatalf("expected no permission without a token")
	}
	if m.dryRuns != 0 {
		t.Fatalf("empty token must not reach FCM")
	}

	token = "token-123"
	if ok, _ := sender.Authorize(context.Background()); !ok {
		t.Fatalf("expected permission with a valid token")
	}

	m.err = errors.New("invalid argument")
	if ok, _ := sender.Authorize(context.Background()); ok {
		t.Fatalf("expected rejected token to deny permission")
	}
}
