package email

import (
	"fmt"
	"html"
	"time"

	"medifind/pkg/models"
)

const baseStyle = `
        body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { color: white; padding: 20px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 30px; }
        .box { padding: 15px; margin: 20px 0; }
        .footer { background-color: #f8f9fa; padding: 15px; text-align: center; font-size: 12px; color: #666; }`

func formatWhen(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("Mon, 02 Jan 2006 15:04")
}

// ConsultationConfirmationTemplate renders the booking confirmation email.
func ConsultationConfirmationTemplate(c models.Consultation, loc *time.Location) string {
	symptoms := "Not provided"
	if c.Symptoms != "" {
		symptoms = html.EscapeString(c.Symptoms)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>%s
        .header { background-color: #2E7D32; }
        .box { background-color: #E8F5E9; border-left: 4px solid #2E7D32; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>✅ Consultation booked</h1>
        </div>
        <div class="content">
            <p>Hello <strong>%s</strong>,</p>

            <div class="box">
                Your consultation with <strong>%s</strong> is confirmed.
            </div>

            <p><strong>When:</strong> %s (%d minutes)</p>
            <p><strong>Fee:</strong> %.2f</p>
            <p><strong>Symptoms:</strong> %s</p>
            <p><strong>Reference:</strong> %s</p>

            <p>We will remind you one hour before the consultation starts.</p>
        </div>
        <div class="footer">
            <p>This is an automatic email from MediFind</p>
            <p>Please do not reply</p>
        </div>
    </div>
</body>
</html>
    `, baseStyle,
		html.EscapeString(c.PatientName),
		html.EscapeString(c.DoctorName),
		formatWhen(c.ScheduledTime, loc), c.Duration,
		c.ConsultationFee,
		symptoms,
		html.EscapeString(c.ID))
}

// ConsultationCancellationTemplate renders the cancellation email.
func ConsultationCancellationTemplate(c models.Consultation, loc *time.Location) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>%s
        .header { background-color: #DC3545; }
        .box { background-color: #F8D7DA; border-left: 4px solid #DC3545; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Consultation cancelled</h1>
        </div>
        <div class="content">
            <p>Hello <strong>%s</strong>,</p>

            <div class="box">
                Your consultation with <strong>%s</strong> on %s has been cancelled.
            </div>

            <p>The time slot is free again. You can book a new consultation from the app at any time.</p>
        </div>
        <div class="footer">
            <p>This is an automatic email from MediFind</p>
            <p>Please do not reply</p>
        </div>
    </div>
</body>
</html>
    `, baseStyle,
		html.EscapeString(c.PatientName),
		html.EscapeString(c.DoctorName),
		formatWhen(c.ScheduledTime, loc))
}
