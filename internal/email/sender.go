package email

import (
	"fmt"
	"time"

	"medifind/pkg/models"
)

// SendConsultationConfirmation emails the patient the details of a booked consultation.
func (s *EmailService) SendConsultationConfirmation(to string, c models.Consultation, loc *time.Location) error {
	subject := fmt.Sprintf("✅ Consultation booked with %s", c.DoctorName)
	htmlBody := ConsultationConfirmationTemplate(c, loc)

	if err := s.SendEmail(to, subject, htmlBody); err != nil {
		s.log.WithError(err).WithField("consultation_id", c.ID).Error("❌ Failed to send confirmation email")
		return err
	}

	s.log.WithField("consultation_id", c.ID).Info("📧 Confirmation email sent")
	return nil
}

// SendConsultationCancellation emails the patient that a consultation was cancelled.
func (s *EmailService) SendConsultationCancellation(to string, c models.Consultation, loc *time.Location) error {
	subject := fmt.Sprintf("Consultation with %s cancelled", c.DoctorName)
	htmlBody := ConsultationCancellationTemplate(c, loc)

	if err := s.SendEmail(to, subject, htmlBody); err != nil {
		s.log.WithError(err).WithField("consultation_id", c.ID).Error("❌ Failed to send cancellation email")
		return err
	}

	s.log.WithField("consultation_id", c.ID).Info("📧 Cancellation email sent")
	return nil
}
