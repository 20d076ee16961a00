// Package app wires the state cache, the remote collections and the schedulers into the
// operations the client exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medifind/internal/booking"
	"medifind/internal/clinic"
	"medifind/internal/docstore"
	"medifind/internal/events"
	"medifind/internal/identity"
	"medifind/internal/notify"
	"medifind/internal/state"
	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotSignedIn      = errors.New("sign in required")
	ErrInvalidInput     = errors.New("invalid input")
	ErrReminderNotFound = fmt.Errorf("reminder: %w", docstore.ErrNotFound)
)

type DrugLookup interface {
	Search(ctx context.Context, name string) (*models.Medicine, error)
}

type Assistant interface {
	AskAboutMedicine(ctx context.Context, medicine, question string) (string, error)
}

type Mailer interface {
	SendConsultationConfirmation(to string, c models.Consultation, loc *time.Location) error
	SendConsultationCancellation(to string, c models.Consultation, loc *time.Location) error
}

type Deps struct {
	Cache     *state.Cache
	Clinic    *clinic.Repository
	Booking   *booking.Service
	Notifier  *notify.Scheduler
	Drugs     DrugLookup
	Assistant Assistant
	Identity  identity.Provider
	Events    events.Publisher
	// Mailer is optional.
	Mailer Mailer
	Log    logrus.FieldLogger

	Location      *time.Location
	DoctorTTL     time.Duration
	LookupTimeout time.Duration
	AITimeout     time.Duration
}

type App struct {
	Deps
	now func() time.Time
}

func New(d Deps) *App {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.DoctorTTL <= 0 {
		d.DoctorTTL = time.Hour
	}
	if d.LookupTimeout <= 0 {
		d.LookupTimeout = 10 * time.Second
	}
	if d.AITimeout <= 0 {
		d.AITimeout = 30 * time.Second
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &App{Deps: d, now: time.Now}
}

// Start hydrates the cache and re-arms the notifications of cached reminders and
// consultations.
func (a *App) Start(ctx context.Context) {
	a.Cache.Hydrate(ctx)

	if _, err := a.Notifier.RequestPermission(ctx); err != nil {
		a.Log.WithError(err).Warn("⚠️ Notification permission unknown")
	}
	a.restoreReminders(ctx)
	a.rearmConsultationReminders(ctx, a.Cache.Consultations())
}

func (a *App) currentUser() (*models.User, error) {
	u := a.Cache.User()
	if u == nil {
		return nil, ErrNotSignedIn
	}
	return u, nil
}

func (a *App) publish(eventType string, c models.Consultation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Events.Publish(ctx, events.NewConsultationEvent(eventType, c, a.now())); err != nil {
		a.Log.WithError(err).WithField("consultation_id", c.ID).Warn("⚠️ Failed to publish consultation event")
	}
}

// Stats summarizes the cached state.
type Stats struct {
	SignedIn             bool              `json:"signedIn"`
	Hydrated             bool              `json:"hydrated"`
	SearchHistory        int               `json:"searchHistory"`
	Favorites            int               `json:"favorites"`
	Reminders            int               `json:"reminders"`
	Doctors              int               `json:"doctors"`
	DoctorsCacheTime     time.Time         `json:"doctorsCacheTime"`
	Consultations        int               `json:"consultations"`
	Prescriptions        int               `json:"prescriptions"`
	PendingNotifications int               `json:"pendingNotifications"`
	Permission           notify.Permission `json:"notificationPermission"`
}

func (a *App) Stats() Stats {
	s := a.Cache.Snapshot()
	return Stats{
		SignedIn:             s.User != nil,
		Hydrated:             a.Cache.Hydrated(),
		SearchHistory:        len(s.SearchHistory),
		Favorites:            len(s.Favorites),
		Reminders:            len(s.Reminders),
		Doctors:              len(s.Doctors),
		DoctorsCacheTime:     s.DoctorsCacheTime,
		Consultations:        len(s.Consultations),
		Prescriptions:        len(s.Prescriptions),
		PendingNotifications: len(a.Notifier.Pending()),
		Permission:           a.Notifier.Permission(),
	}
}
