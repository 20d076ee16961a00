// Package clinic reads doctors, availability, consultations, prescriptions and user profiles
// from the remote document collections.
package clinic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"medifind/internal/docstore"
	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	CollectionDoctors       = "doctors"
	CollectionAvailability  = "doctorAvailability"
	CollectionConsultations = "consultations"
	CollectionPrescriptions = "prescriptions"
	CollectionUsers         = "users"
)

var (
	ErrDoctorNotFound       = fmt.Errorf("doctor: %w", docstore.ErrNotFound)
	ErrConsultationNotFound = fmt.Errorf("consultation: %w", docstore.ErrNotFound)
	ErrPrescriptionNotFound = fmt.Errorf("prescription: %w", docstore.ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user: %w", docstore.ErrNotFound)
)

// AvailabilityID is the document id of a doctor's availability on date ("2006-01-02").
func AvailabilityID(doctorID, date string) string {
	return doctorID + "_" + date
}

type Repository struct {
	store   docstore.Store
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewRepository(store docstore.Store, log logrus.FieldLogger, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Repository{store: store, log: log, timeout: timeout}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// ListDoctors returns verified doctors, highest rated first. Equal ratings keep the
// collection order.
func (r *Repository) ListDoctors(ctx context.Context) ([]models.Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	docs, err := r.store.Query(ctx, docstore.Query{Collection: CollectionDoctors})
	if err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}

	doctors := make([]models.Doctor, 0, len(docs))
	for _, doc := range docs {
		var d models.Doctor
		if err := doc.DataTo(&d); err != nil {
			r.log.WithError(err).WithField("doctor_id", doc.ID()).Warn("⚠️ Skipping unreadable doctor")
			continue
		}
		if !d.IsVerified {
			continue
		}
		if d.ID == "" {
			d.ID = doc.ID()
		}
		doctors = append(doctors, d)
	}

	sort.SliceStable(doctors, func(i, j int) bool {
		return doctors[i].Rating > doctors[j].Rating
	})
	return doctors, nil
}

// DoctorsBySpecialization returns verified doctors of one specialization, highest rated
// first. Filtering and ordering happen in the query.
func (r *Repository) DoctorsBySpecialization(ctx context.Context, specialization string) ([]models.Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := docstore.Query{
		Collection: CollectionDoctors,
		OrderBy:    "rating",
		Direction:  docstore.Desc,
	}.Where("specialization", specialization).Where("isVerified", true)

	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query doctors by specialization: %w", err)
	}
	return decodeAll[models.Doctor](r.log, docs, func(d *models.Doctor, id string) {
		if d.ID == "" {
			d.ID = id
		}
	}), nil
}

func (r *Repository) GetDoctor(ctx context.Context, id string) (*models.Doctor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var d models.Doctor
	if err := r.get(ctx, CollectionDoctors, id, &d, ErrDoctorNotFound); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = id
	}
	return &d, nil
}

// GetAvailability returns the slots of a doctor on date. A day without an availability
// document has no slots.
func (r *Repository) GetAvailability(ctx context.Context, doctorID, date string) ([]models.TimeSlot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	doc, err := r.store.Get(ctx, CollectionAvailability, AvailabilityID(doctorID, date))
	if errors.Is(err, docstore.ErrNotFound) {
		return []models.TimeSlot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}

	var availability models.DoctorAvailability
	if err := doc.DataTo(&availability); err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	if availability.Slots == nil {
		return []models.TimeSlot{}, nil
	}
	return availability.Slots, nil
}

// SaveAvailability writes the whole availability document of a doctor's day.
func (r *Repository) SaveAvailability(ctx context.Context, availability models.DoctorAvailability) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id := AvailabilityID(availability.DoctorID, availability.Date)
	if err := r.store.Set(ctx, CollectionAvailability, id, availability); err != nil {
		return fmt.Errorf("failed to save availability: %w", err)
	}
	return nil
}

// SaveDoctor writes a doctor profile.
func (r *Repository) SaveDoctor(ctx context.Context, d models.Doctor) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.Set(ctx, CollectionDoctors, d.ID, d); err != nil {
		return fmt.Errorf("failed to save doctor: %w", err)
	}
	return nil
}

// ConsultationsForPatient returns a patient's consultations, latest scheduled first.
func (r *Repository) ConsultationsForPatient(ctx context.Context, patientID string) ([]models.Consultation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := docstore.Query{
		Collection: CollectionConsultations,
		OrderBy:    "scheduledTime",
		Direction:  docstore.Desc,
	}.Where("patientId", patientID)

	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query consultations: %w", err)
	}
	return decodeAll[models.Consultation](r.log, docs, func(c *models.Consultation, id string) {
		if c.ID == "" {
			c.ID = id
		}
	}), nil
}

func (r *Repository) GetConsultation(ctx context.Context, id string) (*models.Consultation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var c models.Consultation
	if err := r.get(ctx, CollectionConsultations, id, &c, ErrConsultationNotFound); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = id
	}
	return &c, nil
}

// PrescriptionsForPatient returns a patient's prescriptions, newest first.
func (r *Repository) PrescriptionsForPatient(ctx context.Context, patientID string) ([]models.Prescription, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	q := docstore.Query{
		Collection: CollectionPrescriptions,
		OrderBy:    "createdAt",
		Direction:  docstore.Desc,
	}.Where("patientId", patientID)

	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query prescriptions: %w", err)
	}
	return decodeAll[models.Prescription](r.log, docs, func(p *models.Prescription, id string) {
		if p.ID == "" {
			p.ID = id
		}
	}), nil
}

func (r *Repository) GetPrescription(ctx context.Context, id string) (*models.Prescription, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var p models.Prescription
	if err := r.get(ctx, CollectionPrescriptions, id, &p, ErrPrescriptionNotFound); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

func (r *Repository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var u models.User
	if err := r.get(ctx, CollectionUsers, uid, &u, ErrUserNotFound); err != nil {
		return nil, err
	}
	if u.ID == "" {
		u.ID = uid
	}
	return &u, nil
}

func (r *Repository) SaveUser(ctx context.Context, u models.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.Set(ctx, CollectionUsers, u.ID, u); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// UpdatePushToken stores the device token push notifications are sent to.
func (r *Repository) UpdatePushToken(ctx context.Context, uid, token string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.store.Update(ctx, CollectionUsers, uid, map[string]interface{}{"fcmToken": token})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, collection, id string, v interface{}, notFound error) error {
	doc, err := r.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", collection, id, err)
	}
	if err := doc.DataTo(v); err != nil {
		return fmt.Errorf("failed to get %s %s: %w", collection, id, err)
	}
	return nil
}

func decodeAll[T any](log logrus.FieldLogger, docs []docstore.Document, fix func(*T, string)) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.DataTo(&v); err != nil {
			log.WithError(err).WithField("id", doc.ID()).Warn("⚠️ Skipping unreadable document")
			continue
		}
		fix(&v, doc.ID())
		out = append(out, v)
	}
	return out
}
