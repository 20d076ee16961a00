// Package booking reserves doctor time slots and drives consultation status changes
// through remote transactions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"medifind/internal/clinic"
	"medifind/internal/docstore"
	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

// DefaultDuration is the length of a consultation in minutes.
const DefaultDuration = 30

var (
	ErrAvailabilityNotFound = fmt.Errorf("availability: %w", docstore.ErrNotFound)
	ErrSlotNotFound         = fmt.Errorf("slot: %w", docstore.ErrNotFound)
	ErrSlotAlreadyBooked    = errors.New("slot already booked")
	ErrBookingFailed        = errors.New("booking failed, please try again")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrUpdateFailed      = errors.New("consultation update failed, please try again")
)

// Request identifies the slot to book and who books it.
type Request struct {
	DoctorID             string  `json:"doctorId"`
	DoctorName           string  `json:"doctorName"`
	DoctorSpecialization string  `json:"doctorSpecialization,omitempty"`
	Date                 string  `json:"date"`
	StartTime            string  `json:"startTime"`
	PatientID            string  `json:"patientId"`
	PatientName          string  `json:"patientName"`
	ConsultationFee      float64 `json:"consultationFee"`
	Symptoms             string  `json:"symptoms,omitempty"`
	Notes                string  `json:"notes,omitempty"`
}

func (r Request) validate() error {
	var missing []string
	if r.DoctorID == "" {
		missing = append(missing, "doctorId")
	}
	if r.Date == "" {
		missing = append(missing, "date")
	}
	if r.StartTime == "" {
		missing = append(missing, "startTime")
	}
	if r.PatientID == "" {
		missing = append(missing, "patientId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type Service struct {
	store   docstore.Store
	log     logrus.FieldLogger
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Service)

// WithTimeout bounds each booking or status transaction.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLocation sets the time zone slot dates and times are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store docstore.Store, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		log:     log,
		timeout: 30 * time.Second,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// detach keeps a write running when the caller goes away; it ends on its own timeout.
func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// Book marks the requested slot as booked and creates its consultation in one transaction.
// ErrSlotAlreadyBooked is returned as is; every other failure wraps ErrBookingFailed.
func (s *Service) Book(ctx context.Context, req Request) (*models.Consultation, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBookingFailed, err)
	}
	scheduled, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.StartTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid slot time: %w", ErrBookingFailed, err)
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	availabilityID := clinic.AvailabilityID(req.DoctorID, req.Date)
	consultationID := s.store.NewID(clinic.CollectionConsultations)

	var booked models.Consultation
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(clinic.CollectionAvailability, availabilityID)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrAvailabilityNotFound
		}
		if err != nil {
			return err
		}

		var availability models.DoctorAvailability
		if err := doc.DataTo(&availability); err != nil {
			return err
		}

		i := slices.IndexFunc(availability.Slots, func(slot models.TimeSlot) bool {
			return slot.StartTime == req.StartTime
		})
		if i < 0 {
			return ErrSlotNotFound
		}
		if availability.Slots[i].IsBooked {
			return ErrSlotAlreadyBooked
		}

		slots := slices.Clone(availability.Slots)
		slots[i].IsBooked = true
		slots[i].ConsultationID = consultationID
		availability.Slots = slots
		availability.DoctorID = req.DoctorID
		availability.Date = req.Date

		now := s.now()
		booked = models.Consultation{
			ID:                   consultationID,
			PatientID:            req.PatientID,
			PatientName:          req.PatientName,
			DoctorID:             req.DoctorID,
			DoctorName:           req.DoctorName,
			DoctorSpecialization: req.DoctorSpecialization,
			ScheduledTime:        scheduled,
			Duration:             DefaultDuration,
			Status:               models.StatusScheduled,
			ConsultationFee:      req.ConsultationFee,
			ChannelName:          ChannelName(consultationID),
			Symptoms:             req.Symptoms,
			Notes:                req.Notes,
			SlotDate:             req.Date,
			SlotStart:            req.StartTime,
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		if err := tx.Set(clinic.CollectionAvailability, availabilityID, availability); err != nil {
			return err
		}
		return tx.Create(clinic.CollectionConsultations, consultationID, booked)
	})

	logger := s.log.WithFields(logrus.Fields{
		"doctor_id":  req.DoctorID,
		"date":       req.Date,
		"start_time": req.StartTime,
		"patient_id": req.PatientID,
	})
	if errors.Is(err, ErrSlotAlreadyBooked) {
		logger.Info("⚠️ Slot already booked")
		return nil, ErrSlotAlreadyBooked
	}
	if err != nil {
		logger.WithError(err).Error("❌ Booking failed")
		return nil, fmt.Errorf("%w: %w", ErrBookingFailed, err)
	}

	logger.WithField("consultation_id", booked.ID).Info("✅ Consultation booked")
	return &booked, nil
}

// ChannelName is the communication channel of a consultation.
func ChannelName(consultationID string) string {
	return "consultation_" + consultationID
}

// Cancel moves a scheduled consultation to cancelled and frees its slot in the same
// transaction.
func (s *Service) Cancel(ctx context.Context, consultationID string) (*models.Consultation, error) {
	return s.transition(ctx, consultationID, models.StatusCancelled)
}

// UpdateStatus moves a consultation to status when the state machine allows it.
func (s *Service) UpdateStatus(ctx context.Context, consultationID string, status models.ConsultationStatus) (*models.Consultation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.transition(ctx, consultationID, status)
}

func (s *Service) transition(ctx context.Context, consultationID string, to models.ConsultationStatus) (*models.Consultation, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	var updated models.Consultation
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(clinic.CollectionConsultations, consultationID)
		if errors.Is(err, docstore.ErrNotFound) {
			return clinic.ErrConsultationNotFound
		}
		if err != nil {
			return err
		}

		var c models.Consultation
		if err := doc.DataTo(&c); err != nil {
			return err
		}
		if c.ID == "" {
			c.ID = consultationID
		}
		if !models.CanTransition(c.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
		}

		var availability *models.DoctorAvailability
		availabilityID := clinic.AvailabilityID(c.DoctorID, c.SlotDate)
		if to == models.StatusCancelled && c.SlotDate != "" {
			availability, err = releaseSlot(tx, availabilityID, c)
			if err != nil {
				return err
			}
		}

		c.Status = to
		c.UpdatedAt = s.now()
		updated = c

		if availability != nil {
			if err := tx.Set(clinic.CollectionAvailability, availabilityID, *availability); err != nil {
				return err
			}
		}
		return tx.Set(clinic.CollectionConsultations, consultationID, c)
	})

	logger := s.log.WithFields(logrus.Fields{"consultation_id": consultationID, "status": to})
	switch {
	case err == nil:
		logger.Info("✅ Consultation status updated")
		return &updated, nil
	case errors.Is(err, clinic.ErrConsultationNotFound), errors.Is(err, ErrInvalidTransition):
		logger.WithError(err).Warn("⚠️ Consultation status not updated")
		return nil, err
	default:
		logger.WithError(err).Error("❌ Consultation status update failed")
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
}

// releaseSlot returns the availability with the consultation's slot freed, or nil when there
// is nothing to release.
func releaseSlot(tx docstore.Tx, availabilityID string, c models.Consultation) (*models.DoctorAvailability, error) {
	doc, err := tx.Get(clinic.CollectionAvailability, availabilityID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var availability models.DoctorAvailability
	if err := doc.DataTo(&availability); err != nil {
		return nil, err
	}
	i := slices.IndexFunc(availability.Slots, func(slot models.TimeSlot) bool {
		return slot.StartTime == c.SlotStart && slot.ConsultationID == c.ID
	})
	if i < 0 {
		return nil, nil
	}

	slots := slices.Clone(availability.Slots)
	slots[i].IsBooked = false
	slots[i].ConsultationID = ""
	availability.Slots = slots
	return &availability, nil
}
