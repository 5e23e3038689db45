package notify

import "fmt"

// Compose fills Subject and Body for a notification kind.
func Compose(kind Kind, to, name string, fields map[string]string) Notification {
	n := Notification{To: to, Name: name, Kind: kind}

	switch kind {
	case KindAppointmentRequested:
		n.Subject = "New appointment request"
		n.Body = fmt.Sprintf("%s requested an appointment on %s at %s.", fields["patientName"], fields["appointmentDate"], fields["startTime"])
	case KindAppointmentConfirmed:
		n.Subject = "Your appointment is confirmed"
		n.Body = fmt.Sprintf("Dr. %s confirmed your appointment on %s.", fields["doctorName"], fields["appointmentDate"])
	case KindAppointmentRejected:
		n.Subject = "Your appointment request was declined"
		n.Body = fmt.Sprintf("Reason: %s", orNone(fields["reason"]))
	case KindAppointmentCancelled:
		n.Subject = "An appointment was cancelled"
		n.Body = fmt.Sprintf("Reason: %s", orNone(fields["reason"]))
	case KindAppointmentCompleted:
		n.Subject = "Your consultation is complete"
		n.Body = fmt.Sprintf("Your consultation with Dr. %s is complete. Your summary will be available shortly.", fields["doctorName"])
	case KindDoctorApproved:
		n.Subject = "Your doctor account is approved"
		n.Body = "You can now accept appointment requests."
	case KindDoctorRejected:
		n.Subject = "Your doctor application was not approved"
		n.Body = fmt.Sprintf("Reason: %s", orNone(fields["reason"]))
	default:
		n.Subject = string(kind)
	}

	return n
}

func orNone(s string) string {
	if s == "" {
		return "not specified"
	}
	return s
}
