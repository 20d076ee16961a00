package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medifind/pkg/models"
)

// Intervals used when the configured one is not positive.
const (
	DefaultDoctorCacheInterval      = 30 * time.Minute
	DefaultConsultationSyncInterval = 5 * time.Minute
)

// DoctorSource is the part of the application the doctor cache worker drives.
type DoctorSource interface {
	Doctors(ctx context.Context, refresh bool) ([]models.Doctor, error)
}

// DoctorCacheWorker keeps the cached doctor list fresh. A fresh cache is left untouched.
type DoctorCacheWorker struct {
	source   DoctorSource
	interval time.Duration
}

func NewDoctorCacheWorker(source DoctorSource, interval time.Duration) *DoctorCacheWorker {
	if interval <= 0 {
		interval = DefaultDoctorCacheInterval
	}
	return &DoctorCacheWorker{source: source, interval: interval}
}

func (w *DoctorCacheWorker) Name() string { return "doctor-cache" }

func (w *DoctorCacheWorker) Interval() time.Duration { return w.interval }

func (w *DoctorCacheWorker) Run(ctx context.Context) error {
	if _, err := w.source.Doctors(ctx, false); err != nil {
		return fmt.Errorf("failed to refresh doctors: %w", err)
	}
	return nil
}

// SessionSync is the part of the application the consultation sync worker drives.
type SessionSync interface {
	SyncConsultations(ctx context.Context) error
	SyncPrescriptions(ctx context.Context) error
}

// ConsultationSyncWorker pulls the signed-in user's consultations and prescriptions.
// Nothing happens while nobody is signed in.
type ConsultationSyncWorker struct {
	session     SessionSync
	interval    time.Duration
	notSignedIn error
}

// NewConsultationSyncWorker builds the worker. Runs failing with notSignedIn count as idle.
func NewConsultationSyncWorker(session SessionSync, interval time.Duration, notSignedIn error) *ConsultationSyncWorker {
	if interval <= 0 {
		interval = DefaultConsultationSyncInterval
	}
	return &ConsultationSyncWorker{session: session, interval: interval, notSignedIn: notSignedIn}
}

func (w *ConsultationSyncWorker) Name() string { return "consultation-sync" }

func (w *ConsultationSyncWorker) Interval() time.Duration { return w.interval }

func (w *ConsultationSyncWorker) Run(ctx context.Context) error {
	err := w.session.SyncConsultations(ctx)
	if w.idle(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to sync consultations: %w", err)
	}

	err = w.session.SyncPrescriptions(ctx)
	if w.idle(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to sync prescriptions: %w", err)
	}
	return nil
}

func (w *ConsultationSyncWorker) idle(err error) bool {
	return err != nil && w.notSignedIn != nil && errors.Is(err, w.notSignedIn)
}
