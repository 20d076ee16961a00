package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medifind/pkg/models"
)

// ConsultationReminderOffset is how long before a consultation its reminder fires.
const ConsultationReminderOffset = time.Hour

func ConsultationReminderID(consultationID string) string {
	return "consultation_" + consultationID
}

func reminderPrefix(reminderID string) string {
	return "reminder_" + reminderID + "_"
}

// ScheduleConsultationReminder arranges the reminder of a scheduled consultation. It reports
// false without error when the consultation is not scheduled or the reminder time has
// already passed.
func (s *Scheduler) ScheduleConsultationReminder(ctx context.Context, c models.Consultation) (bool, error) {
	if c.Status != models.StatusScheduled {
		return false, nil
	}
	at := c.ScheduledTime.Add(-ConsultationReminderOffset)
	if !at.After(s.now()) {
		return false, nil
	}

	n := Notification{
		ID:      ConsultationReminderID(c.ID),
		Title:   "Upcoming consultation",
		Body:    fmt.Sprintf("Your consultation with %s starts at %s", c.DoctorName, c.ScheduledTime.In(s.loc).Format("15:04")),
		Channel: "consultations",
		Data: map[string]string{
			"type":           "consultation_reminder",
			"consultationId": c.ID,
			"channelName":    c.ChannelName,
		},
	}
	if err := s.ScheduleOnce(ctx, n, at); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scheduler) CancelConsultationReminder(consultationID string) {
	s.Cancel(ConsultationReminderID(consultationID))
}

// repeatOffsets are the extra daily fire times, relative to the reminder time, of each
// repeating frequency.
var repeatOffsets = map[models.ReminderFrequency][]time.Duration{
	models.FrequencyDaily:  {0},
	models.FrequencyTwice:  {0, 12 * time.Hour},
	models.FrequencyThrice: {0, 8 * time.Hour, 16 * time.Hour},
}

// ScheduleReminder replaces the notifications of a medication reminder. Disabled reminders
// only have their notifications removed. Custom reminders fire once at their time.
func (s *Scheduler) ScheduleReminder(ctx context.Context, r models.Reminder) error {
	s.CancelReminder(r.ID)
	if !r.Enabled {
		return nil
	}

	n := Notification{
		Title:   "Medication reminder",
		Body:    fmt.Sprintf("Time to take %s", r.MedicineName),
		Channel: "reminders",
		Data: map[string]string{
			"type":       "medication_reminder",
			"reminderId": r.ID,
			"medicine":   r.MedicineName,
		},
	}
	if r.Notes != "" {
		n.Body += ": " + r.Notes
	}

	if r.Frequency == models.FrequencyCustom {
		n.ID = reminderPrefix(r.ID) + "once"
		return s.ScheduleOnce(ctx, n, r.Time)
	}

	offsets, ok := repeatOffsets[r.Frequency]
	if !ok {
		return fmt.Errorf("unknown reminder frequency %q", r.Frequency)
	}
	base := r.Time.In(s.loc)
	for i, offset := range offsets {
		at := base.Add(offset)
		n.ID = fmt.Sprintf("%s%d", reminderPrefix(r.ID), i)
		if err := s.ScheduleRepeating(ctx, n, fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())); err != nil {
			s.CancelReminder(r.ID)
			return err
		}
	}
	return nil
}

// CancelReminder removes every notification of a medication reminder.
func (s *Scheduler) CancelReminder(reminderID string) {
	prefix := reminderPrefix(reminderID)
	s.CancelMatching(func(id string) bool { return strings.HasPrefix(id, prefix) })
}
