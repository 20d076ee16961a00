package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

type fakeSender struct {
	mu         sync.Mutex
	sent       []Notification
	authorized bool
	fail       bool
}

func (f *fakeSender) Send(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("unreachable device")
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeSender) Authorize(context.Context) (bool, error) {
	return f.authorized, nil
}

func (f *fakeSender) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.ID
	}
	return out
}

var start = time.Date(2025, 11, 28, 7, 0, 0, 0, time.UTC)

func newTestScheduler(sender *fakeSender) (*Scheduler, *time.Time) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewScheduler(sender, log, time.UTC, time.Second)
	now := start
	s.now = func() time.Time { return now }
	return s, &now
}

func TestScheduleOnceFiresWhenDue(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{authorized: true}
	s, now := newTestScheduler(sender)

	if err := s.ScheduleOnce(ctx, Notification{ID: "a"}, start.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.ScheduleOnce(ctx, Notification{ID: "b"}, start.Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := s.fireDue(ctx); n != 0 {
		t.Fatalf("expected nothing due, got %d", n)
	}

	*now = start.Add(2 * time.Minute)
	if n := s.fireDue(ctx); n != 1 {
		t.Fatalf("expected 1 due, got %d", n)
	}
	if ids := sender.ids(); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("unexpected sent notifications: %v", ids)
	}
	if pending := s.Pending(); len(pending) != 1 || pending[0].ID != "b" {
		t.Fatalf("unexpected pending: %+v", pending)
	}
}

func TestScheduleOnceRejectsPastTime(t *testing.T) {
	s, _ := newTestScheduler(&fakeSender{authorized: true})
	if err := s.ScheduleOnce(context.Background(), Notification{ID: "a"}, start); !errors.Is(err, ErrInPast) {
		t.Fatalf("expected ErrInPast, got %v", err)
	}
}

func TestPermissionDenied(t *testing.T) {
	s, _ := newTestScheduler(&fakeSender{authorized: false})

	if s.Permission() != PermissionUndetermined {
		t.Fatalf("expected undetermined permission")
	}
	err := s.ScheduleOnce(context.Background(), Notification{ID: "a"}, start.Add(time.Hour))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if s.Permission() != PermissionDenied {
		t.Fatalf("expected denied permission, got %s", s.Permission())
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("expected nothing scheduled")
	}
}

func TestConsultationReminder(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name      string
		status    models.ConsultationStatus
		scheduled time.Time
		want      bool
	}{
		{"scheduled in future", models.StatusScheduled, start.Add(3 * time.Hour), true},
		{"inside the hour", models.StatusScheduled, start.Add(30 * time.Minute), false},
		{"exactly one hour", models.StatusScheduled, start.Add(time.Hour), false},
		{"cancelled", models.StatusCancelled, start.Add(3 * time.Hour), false},
		{"ongoing", models.StatusOngoing, start.Add(3 * time.Hour), false},
	}

	for _, c := range cases {
		s, _ := newTestScheduler(&fakeSender{authorized: true})
		consultation := models.Consultation{ID: "c1", DoctorName: "Dr. D", Status: c.status, ScheduledTime: c.scheduled}

		got, err := s.ScheduleConsultationReminder(ctx, consultation)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, got)
		}
		pending := s.Pending()
		if c.want {
			if len(pending) != 1 || !pending[0].FireAt.Equal(c.scheduled.Add(-time.Hour)) {
				t.Fatalf("%s: unexpected pending: %+v", c.name, pending)
			}
		} else if len(pending) != 0 {
			t.Fatalf("%s: expected no reminder, got %+v", c.name, pending)
		}
	}
}

func TestScheduleReminderFrequencies(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2025, 11, 28, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		frequency models.ReminderFrequency
		repeats   []string
	}{
		{models.FrequencyDaily, []string{"0 8 * * *"}},
		{models.FrequencyTwice, []string{"0 8 * * *", "0 20 * * *"}},
		{models.FrequencyThrice, []string{"0 8 * * *", "0 16 * * *", "0 0 * * *"}},
	}

	for _, c := range cases {
		s, _ := newTestScheduler(&fakeSender{authorized: true})
		r := models.Reminder{ID: "r1", MedicineName: "Aspirin", Time: first, Frequency: c.frequency, Enabled: true}
		if err := s.ScheduleReminder(ctx, r); err != nil {
			t.Fatalf("%s: unexpected error: %v", c.frequency, err)
		}

		pending := s.Pending()
		if len(pending) != len(c.repeats) {
			t.Fatalf("%s: expected %d notifications, got %d", c.frequency, len(c.repeats), len(pending))
		}
		specs := map[string]bool{}
		for _, p := range pending {
			specs[p.Repeat] = true
		}
		for _, want := range c.repeats {
			if !specs[want] {
				t.Fatalf("%s: missing repeat %q in %v", c.frequency, want, specs)
			}
		}
		if pending[0].FireAt.Before(start) {
			t.Fatalf("%s: next fire time in the past: %v", c.frequency, pending[0].FireAt)
		}
	}
}

func TestScheduleReminderCustomAndDisabled(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(&fakeSender{authorized: true})

	at := start.Add(2 * time.Hour)
	r := models.Reminder{ID: "r1", MedicineName: "Aspirin", Time: at, Frequency: models.FrequencyCustom, Enabled: true}
	if err := s.ScheduleReminder(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pending := s.Pending()
	if len(pending) != 1 || pending[0].Repeat != "" || !pending[0].FireAt.Equal(at) {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	r.Frequency = models.FrequencyDaily
	if err := s.ScheduleReminder(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending := s.Pending(); len(pending) != 1 || pending[0].Repeat == "" {
		t.Fatalf("expected custom reminder replaced by daily one, got %+v", pending)
	}

	r.Enabled = false
	if err := s.ScheduleReminder(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("expected disabled reminder to be unscheduled")
	}
}

func TestCancelReminderLeavesOthers(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(&fakeSender{authorized: true})
	first := start.Add(time.Hour)

	_ = s.ScheduleReminder(ctx, models.Reminder{ID: "r1", Time: first, Frequency: models.FrequencyThrice, Enabled: true})
	_ = s.ScheduleReminder(ctx, models.Reminder{ID: "r10", Time: first, Frequency: models.FrequencyDaily, Enabled: true})
	_, _ = s.ScheduleConsultationReminder(ctx, models.Consultation{ID: "c1", Status: models.StatusScheduled, ScheduledTime: start.Add(5 * time.Hour)})

	s.CancelReminder("r1")
	pending := s.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %+v", pending)
	}

	s.CancelAll()
	if len(s.Pending()) != 0 {
		t.Fatalf("expected nothing pending")
	}
}

func TestSendFailureDropsOneShot(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{authorized: true, fail: true}
	s, now := newTestScheduler(sender)

	_ = s.ScheduleOnce(ctx, Notification{ID: "a"}, start.Add(time.Minute))
	*now = start.Add(time.Hour)
	if n := s.fireDue(ctx); n != 1 {
		t.Fatalf("expected 1 due, got %d", n)
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("expected fired notification to be removed")
	}
}
