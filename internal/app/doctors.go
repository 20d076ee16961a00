package app

import (
	"context"
	"fmt"
	"time"

	"medifind/pkg/models"
)

// Doctors returns the verified doctors, from the cache while it is fresh. A failed refresh
// falls back to a non-empty stale cache.
func (a *App) Doctors(ctx context.Context, refresh bool) ([]models.Doctor, error) {
	if !refresh && !a.Cache.DoctorsStale(a.DoctorTTL) {
		return a.Cache.Doctors(), nil
	}

	doctors, err := a.RefreshDoctors(ctx)
	if err != nil {
		if cached := a.Cache.Doctors(); len(cached) > 0 {
			a.Log.WithError(err).Warn("⚠️ Serving stale doctor list")
			return cached, nil
		}
		return nil, err
	}
	return doctors, nil
}

// RefreshDoctors reloads the doctor list from the remote collection into the cache.
func (a *App) RefreshDoctors(ctx context.Context) ([]models.Doctor, error) {
	doctors, err := a.Clinic.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.Cache.SetDoctors(ctx, doctors); err != nil {
		return nil, fmt.Errorf("failed to cache doctors: %w", err)
	}
	a.Log.WithField("count", len(doctors)).Info("👩‍⚕️ Doctor list refreshed")
	return doctors, nil
}

func (a *App) DoctorsBySpecialization(ctx context.Context, specialization string) ([]models.Doctor, error) {
	if specialization == "" {
		return nil, fmt.Errorf("%w: specialization is required", ErrInvalidInput)
	}
	return a.Clinic.DoctorsBySpecialization(ctx, specialization)
}

// Doctor returns a doctor from the cache, or from the remote collection when not cached.
func (a *App) Doctor(ctx context.Context, id string) (*models.Doctor, error) {
	for _, d := range a.Cache.Doctors() {
		if d.ID == id {
			return &d, nil
		}
	}
	return a.Clinic.GetDoctor(ctx, id)
}

// Availability returns the slots of a doctor on date ("2006-01-02").
func (a *App) Availability(ctx context.Context, doctorID, date string) ([]models.TimeSlot, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return a.Clinic.GetAvailability(ctx, doctorID, date)
}
