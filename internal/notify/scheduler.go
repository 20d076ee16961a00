// Package notify schedules and cancels user alerts: one-shot notifications fired from a
// ticker loop and repeating ones driven by cron expressions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	ErrPermissionDenied = errors.New("notification permission denied")
	ErrInPast           = errors.New("notification time is in the past")
)

type Permission string

const (
	PermissionUndetermined Permission = "undetermined"
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
)

type Notification struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Channel string            `json:"channel,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Sender delivers notifications to the user's device.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	// Authorize reports whether notifications can currently be delivered.
	Authorize(ctx context.Context) (bool, error)
}

// Pending describes a scheduled notification.
type Pending struct {
	Notification
	FireAt time.Time `json:"fireAt"`
	Repeat string    `json:"repeat,omitempty"`
}

type entry struct {
	n      Notification
	at     time.Time
	repeat string
	sched  cron.Schedule
	cronID cron.EntryID
}

type Scheduler struct {
	sender      Sender
	log         logrus.FieldLogger
	loc         *time.Location
	interval    time.Duration
	sendTimeout time.Duration
	now         func() time.Time

	mu         sync.Mutex
	entries    map[string]*entry
	permission Permission

	cron     *cron.Cron
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewScheduler(sender Sender, log logrus.FieldLogger, loc *time.Location, interval time.Duration) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		sender:      sender,
		log:         log,
		loc:         loc,
		interval:    interval,
		sendTimeout: 15 * time.Second,
		now:         time.Now,
		entries:     make(map[string]*entry),
		permission:  PermissionUndetermined,
		cron:        cron.New(cron.WithLocation(loc)),
		stopChan:    make(chan struct{}),
	}
}

// Start runs the one-shot loop until ctx is done or Stop is called. Repeating
// notifications run on the cron scheduler for the same lifetime.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	defer s.cron.Stop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("⏰ Notification scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Scheduler) Permission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// RequestPermission asks the sender whether delivery is possible and records the answer.
func (s *Scheduler) RequestPermission(ctx context.Context) (Permission, error) {
	ok, err := s.sender.Authorize(ctx)
	if err != nil {
		return s.Permission(), fmt.Errorf("failed to request notification permission: %w", err)
	}

	p := PermissionDenied
	if ok {
		p = PermissionGranted
	}
	s.mu.Lock()
	s.permission = p
	s.mu.Unlock()
	return p, nil
}

func (s *Scheduler) ensurePermission(ctx context.Context) error {
	p := s.Permission()
	if p == PermissionUndetermined {
		var err error
		if p, err = s.RequestPermission(ctx); err != nil {
			return err
		}
	}
	if p != PermissionGranted {
		return ErrPermissionDenied
	}
	return nil
}

// ScheduleOnce arranges n to be sent at at, replacing any notification with the same id.
func (s *Scheduler) ScheduleOnce(ctx context.Context, n Notification, at time.Time) error {
	if !at.After(s.now()) {
		return ErrInPast
	}
	if err := s.ensurePermission(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.removeLocked(n.ID)
	s.entries[n.ID] = &entry{n: n, at: at}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"id": n.ID, "fire_at": at}).Info("🔔 Notification scheduled")
	return nil
}

// ScheduleRepeating sends n on every match of the standard five-field cron spec,
// replacing any notification with the same id.
func (s *Scheduler) ScheduleRepeating(ctx context.Context, n Notification, spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid repeat spec %q: %w", spec, err)
	}
	if err := s.ensurePermission(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(n.ID)
	e := &entry{n: n, repeat: spec, sched: sched}
	e.cronID = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.deliver(n)
	}))
	s.entries[n.ID] = e

	s.log.WithFields(logrus.Fields{"id": n.ID, "repeat": spec}).Info("🔁 Repeating notification scheduled")
	return nil
}

// Cancel removes the notification with id. Unknown ids are ignored.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// CancelMatching removes every notification whose id satisfies match.
func (s *Scheduler) CancelMatching(match func(id string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id := range s.entries {
		if match(id) {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

func (s *Scheduler) CancelAll() {
	s.CancelMatching(func(string) bool { return true })
}

func (s *Scheduler) removeLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	if e.repeat != "" {
		s.cron.Remove(e.cronID)
	}
	delete(s.entries, id)
}

// Pending lists scheduled notifications by next fire time.
func (s *Scheduler) Pending() []Pending {
	now := s.now().In(s.loc)

	s.mu.Lock()
	out := make([]Pending, 0, len(s.entries))
	for _, e := range s.entries {
		p := Pending{Notification: e.n, FireAt: e.at, Repeat: e.repeat}
		if e.sched != nil {
			p.FireAt = e.sched.Next(now)
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// fireDue sends every one-shot notification whose time has come.
func (s *Scheduler) fireDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []Notification
	for id, e := range s.entries {
		if e.repeat == "" && !e.at.After(now) {
			due = append(due, e.n)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, n := range due {
		if ctx.Err() != nil {
			break
		}
		s.deliver(n)
	}
	return len(due)
}

func (s *Scheduler) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := s.sender.Send(ctx, n); err != nil {
		s.log.WithError(err).WithField("id", n.ID).Error("❌ Failed to send notification")
		return
	}
	s.log.WithField("id", n.ID).Info("📲 Notification sent")
}
