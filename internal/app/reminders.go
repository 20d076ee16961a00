package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medifind/internal/notify"
	"medifind/pkg/models"

	"github.com/google/uuid"
)

// ReminderInput describes a new medication reminder.
type ReminderInput struct {
	MedicineName string                   `json:"medicineName"`
	Time         time.Time                `json:"time"`
	Frequency    models.ReminderFrequency `json:"frequency"`
	Notes        string                   `json:"notes,omitempty"`
}

func (in ReminderInput) validate() error {
	if strings.TrimSpace(in.MedicineName) == "" {
		return fmt.Errorf("%w: medicine name is required", ErrInvalidInput)
	}
	if in.Time.IsZero() {
		return fmt.Errorf("%w: reminder time is required", ErrInvalidInput)
	}
	if !in.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, in.Frequency)
	}
	return nil
}

// AddReminder stores an enabled reminder and schedules its notifications. A reminder whose
// notifications cannot be scheduled is still kept.
func (a *App) AddReminder(ctx context.Context, in ReminderInput) (*models.Reminder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	r := models.Reminder{
		ID:           uuid.NewString(),
		MedicineName: strings.TrimSpace(in.MedicineName),
		Time:         in.Time,
		Frequency:    in.Frequency,
		Notes:        in.Notes,
		Enabled:      true,
	}
	if err := a.Cache.AddReminder(ctx, r); err != nil {
		return nil, err
	}
	a.scheduleReminder(ctx, r)
	return &r, nil
}

// UpdateReminder applies patch to a reminder and reschedules it.
func (a *App) UpdateReminder(ctx context.Context, id string, patch models.ReminderPatch) (*models.Reminder, error) {
	if patch.Frequency != nil && !patch.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, *patch.Frequency)
	}
	if patch.MedicineName != nil && strings.TrimSpace(*patch.MedicineName) == "" {
		return nil, fmt.Errorf("%w: medicine name is required", ErrInvalidInput)
	}
	if _, ok := a.reminder(id); !ok {
		return nil, ErrReminderNotFound
	}

	if err := a.Cache.UpdateReminder(ctx, id, patch); err != nil {
		return nil, err
	}
	r, ok := a.reminder(id)
	if !ok {
		return nil, ErrReminderNotFound
	}
	a.scheduleReminder(ctx, r)
	return &r, nil
}

func (a *App) DeleteReminder(ctx context.Context, id string) error {
	if err := a.Cache.DeleteReminder(ctx, id); err != nil {
		return err
	}
	a.Notifier.CancelReminder(id)
	return nil
}

func (a *App) reminder(id string) (models.Reminder, bool) {
	for _, r := range a.Cache.Reminders() {
		if r.ID == id {
			return r, true
		}
	}
	return models.Reminder{}, false
}

func (a *App) scheduleReminder(ctx context.Context, r models.Reminder) {
	err := a.Notifier.ScheduleReminder(ctx, r)
	switch {
	case err == nil:
	case errors.Is(err, notify.ErrPermissionDenied):
		a.Log.WithField("reminder_id", r.ID).Info("🔕 Notifications not permitted, reminder kept without alerts")
	case errors.Is(err, notify.ErrInPast):
		a.Log.WithField("reminder_id", r.ID).Info("⏰ One-shot reminder time already passed")
	default:
		a.Log.WithError(err).WithField("reminder_id", r.ID).Warn("⚠️ Failed to schedule reminder")
	}
}

// restoreReminders schedules the notifications of every cached reminder.
func (a *App) restoreReminders(ctx context.Context) {
	reminders := a.Cache.Reminders()
	for _, r := range reminders {
		a.scheduleReminder(ctx, r)
	}
	a.Log.WithField("count", len(reminders)).Debug("reminders restored")
}
