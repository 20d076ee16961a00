package models

import "time"

// ConsultationStatus is the lifecycle state of a booked consultation.
type ConsultationStatus string

const (
	StatusScheduled ConsultationStatus = "scheduled"
	StatusOngoing   ConsultationStatus = "ongoing"
	StatusCompleted ConsultationStatus = "completed"
	StatusCancelled ConsultationStatus = "cancelled"
)

var allowedTransitions = map[ConsultationStatus][]ConsultationStatus{
	StatusScheduled: {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted},
}

// Valid reports whether s is one of the known statuses.
func (s ConsultationStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s ConsultationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a consultation may move from one status to another.
// Setting the same status again is not a transition.
func CanTransition(from, to ConsultationStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Doctor struct {
	ID                 string   `json:"id" firestore:"id"`
	Name               string   `json:"name" firestore:"name"`
	Email              string   `json:"email,omitempty" firestore:"email,omitempty"`
	Phone              string   `json:"phone,omitempty" firestore:"phone,omitempty"`
	Specialization     string   `json:"specialization" firestore:"specialization"`
	Experience         int      `json:"experience" firestore:"experience"`
	Qualifications     []string `json:"qualifications" firestore:"qualifications"`
	Languages          []string `json:"languages" firestore:"languages"`
	Rating             float64  `json:"rating" firestore:"rating"`
	TotalConsultations int      `json:"totalConsultations" firestore:"totalConsultations"`
	ConsultationFee    float64  `json:"consultationFee" firestore:"consultationFee"`
	ProfileImage       string   `json:"profileImage,omitempty" firestore:"profileImage,omitempty"`
	Bio                string   `json:"bio,omitempty" firestore:"bio,omitempty"`
	IsVerified         bool     `json:"isVerified" firestore:"isVerified"`
	IsAvailable        bool     `json:"isAvailable" firestore:"isAvailable"`
}

// TimeSlot is a bookable interval inside a doctor's day. Start and End are "15:04" strings.
type TimeSlot struct {
	StartTime      string `json:"startTime" firestore:"startTime"`
	EndTime        string `json:"endTime" firestore:"endTime"`
	IsBooked       bool   `json:"isBooked" firestore:"isBooked"`
	ConsultationID string `json:"consultationId,omitempty" firestore:"consultationId,omitempty"`
}

// DoctorAvailability holds the slots of one doctor on one date ("2006-01-02").
type DoctorAvailability struct {
	DoctorID string     `json:"doctorId" firestore:"doctorId"`
	Date     string     `json:"date" firestore:"date"`
	Slots    []TimeSlot `json:"slots" firestore:"slots"`
}

type Consultation struct {
	ID                   string             `json:"id" firestore:"id"`
	PatientID            string             `json:"patientId" firestore:"patientId"`
	PatientName          string             `json:"patientName" firestore:"patientName"`
	DoctorID             string             `json:"doctorId" firestore:"doctorId"`
	DoctorName           string             `json:"doctorName" firestore:"doctorName"`
	DoctorSpecialization string             `json:"doctorSpecialization,omitempty" firestore:"doctorSpecialization,omitempty"`
	ScheduledTime        time.Time          `json:"scheduledTime" firestore:"scheduledTime"`
	Duration             int                `json:"duration" firestore:"duration"`
	Status               ConsultationStatus `json:"status" firestore:"status"`
	ConsultationFee      float64            `json:"consultationFee" firestore:"consultationFee"`
	ChannelName          string             `json:"channelName" firestore:"channelName"`
	Symptoms             string             `json:"symptoms,omitempty" firestore:"symptoms,omitempty"`
	Notes                string             `json:"notes,omitempty" firestore:"notes,omitempty"`
	PrescriptionID       string             `json:"prescriptionId,omitempty" firestore:"prescriptionId,omitempty"`
	SlotDate             string             `json:"slotDate" firestore:"slotDate"`
	SlotStart            string             `json:"slotStart" firestore:"slotStart"`
	CreatedAt            time.Time          `json:"createdAt" firestore:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt" firestore:"updatedAt"`
}

// ConsultationPatch carries the fields to overwrite on a consultation; nil fields are kept.
type ConsultationPatch struct {
	Status         *ConsultationStatus `json:"status,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
	Symptoms       *string             `json:"symptoms,omitempty"`
	PrescriptionID *string             `json:"prescriptionId,omitempty"`
	UpdatedAt      *time.Time          `json:"updatedAt,omitempty"`
}

// Apply merges the patch into c.
func (p ConsultationPatch) Apply(c *Consultation) {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.Symptoms != nil {
		c.Symptoms = *p.Symptoms
	}
	if p.PrescriptionID != nil {
		c.PrescriptionID = *p.PrescriptionID
	}
	if p.UpdatedAt != nil {
		c.UpdatedAt = *p.UpdatedAt
	}
}

type PrescribedMedication struct {
	Name         string `json:"name" firestore:"name"`
	Dosage       string `json:"dosage" firestore:"dosage"`
	Frequency    string `json:"frequency" firestore:"frequency"`
	Duration     string `json:"duration" firestore:"duration"`
	Instructions string `json:"instructions,omitempty" firestore:"instructions,omitempty"`
}

type Prescription struct {
	ID             string                 `json:"id" firestore:"id"`
	ConsultationID string                 `json:"consultationId" firestore:"consultationId"`
	DoctorID       string                 `json:"doctorId" firestore:"doctorId"`
	DoctorName     string                 `json:"doctorName" firestore:"doctorName"`
	PatientID      string                 `json:"patientId" firestore:"patientId"`
	PatientName    string                 `json:"patientName" firestore:"patientName"`
	Medications    []PrescribedMedication `json:"medications" firestore:"medications"`
	Diagnosis      string                 `json:"diagnosis" firestore:"diagnosis"`
	Advice         string                 `json:"advice,omitempty" firestore:"advice,omitempty"`
	FollowUpDate   *time.Time             `json:"followUpDate,omitempty" firestore:"followUpDate,omitempty"`
	CreatedAt      time.Time              `json:"createdAt" firestore:"createdAt"`
}

type User struct {
	ID             string     `json:"id" firestore:"id"`
	Name           string     `json:"name" firestore:"name"`
	Email          string     `json:"email,omitempty" firestore:"email,omitempty"`
	Phone          string     `json:"phone,omitempty" firestore:"phone,omitempty"`
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty" firestore:"dateOfBirth,omitempty"`
	Gender         string     `json:"gender,omitempty" firestore:"gender,omitempty"`
	BloodGroup     string     `json:"bloodGroup,omitempty" firestore:"bloodGroup,omitempty"`
	Allergies      []string   `json:"allergies,omitempty" firestore:"allergies,omitempty"`
	MedicalHistory []string   `json:"medicalHistory,omitempty" firestore:"medicalHistory,omitempty"`
	FCMToken       string     `json:"fcmToken,omitempty" firestore:"fcmToken,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" firestore:"createdAt"`
}

// Medicine is a drug label result kept locally in history and favorites.
type Medicine struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	GenericName      string    `json:"genericName,omitempty"`
	Manufacturer     string    `json:"manufacturer,omitempty"`
	Description      string    `json:"description,omitempty"`
	Ingredients      []string  `json:"ingredients"`
	Indications      string    `json:"indications,omitempty"`
	AdverseReactions string    `json:"adverseReactions,omitempty"`
	Dosage           string    `json:"dosage,omitempty"`
	Warnings         string    `json:"warnings,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	IsFavorite       bool      `json:"isFavorite"`
}

type ReminderFrequency string

const (
	FrequencyDaily  ReminderFrequency = "daily"
	FrequencyTwice  ReminderFrequency = "twice"
	FrequencyThrice ReminderFrequency = "thrice"
	FrequencyCustom ReminderFrequency = "custom"
)

func (f ReminderFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyTwice, FrequencyThrice, FrequencyCustom:
		return true
	}
	return false
}

// Reminder is a local medication alert. Time is the first fire time of the day.
type Reminder struct {
	ID           string            `json:"id"`
	MedicineName string            `json:"medicineName"`
	Time         time.Time         `json:"time"`
	Frequency    ReminderFrequency `json:"frequency"`
	Notes        string            `json:"notes,omitempty"`
	Enabled      bool              `json:"enabled"`
}

// ReminderPatch carries the fields to overwrite on a reminder; nil fields are kept.
type ReminderPatch struct {
	MedicineName *string            `json:"medicineName,omitempty"`
	Time         *time.Time         `json:"time,omitempty"`
	Frequency    *ReminderFrequency `json:"frequency,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	Enabled      *bool              `json:"enabled,omitempty"`
}

// Apply merges the patch into r.
func (p ReminderPatch) Apply(r *Reminder) {
	if p.MedicineName != nil {
		r.MedicineName = *p.MedicineName
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.Frequency != nil {
		r.Frequency = *p.Frequency
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
}
