package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medifind/internal/booking"
	"medifind/internal/clinic"
	"medifind/internal/events"
	"medifind/internal/notify"
	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

// BookInput is what the signed-in patient picks to book a consultation.
type BookInput struct {
	DoctorID  string `json:"doctorId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	Symptoms  string `json:"symptoms,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// BookConsultation books a slot for the signed-in user, caches the consultation, arranges
// its reminder and sends the confirmation.
func (a *App) BookConsultation(ctx context.Context, in BookInput) (*models.Consultation, error) {
	user, err := a.currentUser()
	if err != nil {
		return nil, err
	}
	if in.DoctorID == "" {
		return nil, fmt.Errorf("%w: doctorId is required", ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02 15:04", in.Date+" "+in.StartTime); err != nil {
		return nil, fmt.Errorf("%w: date and startTime must be YYYY-MM-DD and HH:MM", ErrInvalidInput)
	}
	doctor, err := a.Doctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	c, err := a.Booking.Book(ctx, booking.Request{
		DoctorID:             doctor.ID,
		DoctorName:           doctor.Name,
		DoctorSpecialization: doctor.Specialization,
		Date:                 in.Date,
		StartTime:            in.StartTime,
		PatientID:            user.ID,
		PatientName:          user.Name,
		ConsultationFee:      doctor.ConsultationFee,
		Symptoms:             in.Symptoms,
		Notes:                in.Notes,
	})
	if err != nil {
		return nil, err
	}

	// The booking is committed remotely; follow-up failures are only logged.
	ctx = context.WithoutCancel(ctx)
	if err := a.Cache.AddConsultation(ctx, *c); err != nil {
		a.Log.WithError(err).WithField("consultation_id", c.ID).Error("❌ Failed to cache booked consultation")
	}
	a.armConsultationReminder(ctx, *c)
	if a.Mailer != nil && user.Email != "" {
		if err := a.Mailer.SendConsultationConfirmation(user.Email, *c, a.Location); err != nil {
			a.Log.WithError(err).Warn("⚠️ Confirmation email not sent")
		}
	}
	a.publish(events.TypeBooked, *c)
	return c, nil
}

// ownConsultation loads a consultation and checks it belongs to the signed-in user.
func (a *App) ownConsultation(ctx context.Context, id string) (*models.User, *models.Consultation, error) {
	user, err := a.currentUser()
	if err != nil {
		return nil, nil, err
	}
	c, err := a.Clinic.GetConsultation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c.PatientID != user.ID {
		return nil, nil, clinic.ErrConsultationNotFound
	}
	return user, c, nil
}

// CancelConsultation cancels a scheduled consultation of the signed-in user and frees its slot.
func (a *App) CancelConsultation(ctx context.Context, id string) (*models.Consultation, error) {
	user, _, err := a.ownConsultation(ctx, id)
	if err != nil {
		return nil, err
	}

	c, err := a.Booking.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	a.cacheStatus(ctx, *c)
	a.Notifier.CancelConsultationReminder(c.ID)
	if a.Mailer != nil && user.Email != "" {
		if err := a.Mailer.SendConsultationCancellation(user.Email, *c, a.Location); err != nil {
			a.Log.WithError(err).Warn("⚠️ Cancellation email not sent")
		}
	}
	a.publish(events.TypeCancelled, *c)
	return c, nil
}

// UpdateConsultationStatus moves a consultation of the signed-in user to status.
func (a *App) UpdateConsultationStatus(ctx context.Context, id string, status models.ConsultationStatus) (*models.Consultation, error) {
	if status == models.StatusCancelled {
		return a.CancelConsultation(ctx, id)
	}
	if _, _, err := a.ownConsultation(ctx, id); err != nil {
		return nil, err
	}

	c, err := a.Booking.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	a.cacheStatus(ctx, *c)
	a.Notifier.CancelConsultationReminder(c.ID)
	a.publish(events.TypeStatusChanged, *c)
	return c, nil
}

func (a *App) cacheStatus(ctx context.Context, c models.Consultation) {
	patch := models.ConsultationPatch{Status: &c.Status, UpdatedAt: &c.UpdatedAt}
	if err := a.Cache.UpdateConsultation(ctx, c.ID, patch); err != nil {
		a.Log.WithError(err).WithField("consultation_id", c.ID).Error("❌ Failed to cache consultation status")
	}
}

// Consultations returns the cached consultations of the signed-in user.
func (a *App) Consultations() ([]models.Consultation, error) {
	if _, err := a.currentUser(); err != nil {
		return nil, err
	}
	return a.Cache.Consultations(), nil
}

// SyncConsultations merges the remote consultations into the cache and re-arms their
// reminders. Bookings committed while the fetch was in flight stay cached.
func (a *App) SyncConsultations(ctx context.Context) error {
	user, err := a.currentUser()
	if err != nil {
		return err
	}

	started := time.Now()
	consultations, err := a.Clinic.ConsultationsForPatient(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := a.Cache.MergeConsultations(ctx, consultations, started); err != nil {
		return fmt.Errorf("failed to cache consultations: %w", err)
	}
	a.rearmConsultationReminders(ctx, a.Cache.Consultations())
	return nil
}

func (a *App) armConsultationReminder(ctx context.Context, c models.Consultation) {
	scheduled, err := a.Notifier.ScheduleConsultationReminder(ctx, c)
	switch {
	case errors.Is(err, notify.ErrPermissionDenied):
		a.Log.WithField("consultation_id", c.ID).Info("🔕 Notifications not permitted, reminder skipped")
	case err != nil:
		a.Log.WithError(err).WithField("consultation_id", c.ID).Warn("⚠️ Failed to schedule consultation reminder")
	case scheduled:
		a.Log.WithFields(logrus.Fields{"consultation_id": c.ID, "scheduled_time": c.ScheduledTime}).Debug("consultation reminder armed")
	}
}

func (a *App) rearmConsultationReminders(ctx context.Context, consultations []models.Consultation) {
	for _, c := range consultations {
		a.Notifier.CancelConsultationReminder(c.ID)
		a.armConsultationReminder(ctx, c)
	}
}

// Prescriptions returns the cached prescriptions of the signed-in user.
func (a *App) Prescriptions() ([]models.Prescription, error) {
	if _, err := a.currentUser(); err != nil {
		return nil, err
	}
	return a.Cache.Prescriptions(), nil
}

// Prescription returns a prescription of the signed-in user.
func (a *App) Prescription(ctx context.Context, id string) (*models.Prescription, error) {
	user, err := a.currentUser()
	if err != nil {
		return nil, err
	}
	for _, p := range a.Cache.Prescriptions() {
		if p.ID == id {
			return &p, nil
		}
	}

	p, err := a.Clinic.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.PatientID != user.ID {
		return nil, clinic.ErrPrescriptionNotFound
	}
	return p, nil
}

func (a *App) SyncPrescriptions(ctx context.Context) error {
	user, err := a.currentUser()
	if err != nil {
		return err
	}

	prescriptions, err := a.Clinic.PrescriptionsForPatient(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := a.Cache.SetPrescriptions(ctx, prescriptions); err != nil {
		return fmt.Errorf("failed to cache prescriptions: %w", err)
	}
	return nil
}
