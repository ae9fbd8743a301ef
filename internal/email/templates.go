package email

import (
	"fmt"
	"strings"
)

// CreatedNotice carries everything the confirmation email renders.
type CreatedNotice struct {
	PatientName  string
	PatientEmail string
	EventID      string
	When         string // Pre-formatted, clinic timezone (e.g. "02 June 2025, 17:00 WIB")
	Type         string
	Duration     int // minutes
	Location     string
}

// UpdatedNotice carries the update email contents.
type UpdatedNotice struct {
	PatientName  string
	PatientEmail string
	Title        string
	When         string
	Description  string
	Location     string
}

// CancelledNotice carries the cancellation email contents.
type CancelledNotice struct {
	PatientName  string
	PatientEmail string
	EventID      string
	When         string
	Type         string
	Reason       string
}

// The templates below render markdown bodies; ComposeMessage turns
// them into multipart plain+HTML.

func createdBody(clinicName string, n CreatedNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s — Appointment Confirmation\n\n", clinicName)
	fmt.Fprintf(&b, "Dear %s,\n\n", n.PatientName)
	b.WriteString("Your appointment has been successfully scheduled.\n\n")
	fmt.Fprintf(&b, "**Your Event ID:** `%s`\n\n", n.EventID)
	b.WriteString("Keep this Event ID: it is required for confirmation or schedule changes. ")
	b.WriteString("The attached QR code encodes it for quick check-in at the front desk.\n\n")
	b.WriteString("### Appointment Details\n\n")
	fmt.Fprintf(&b, "- **Date & Time:** %s\n", n.When)
	fmt.Fprintf(&b, "- **Type:** %s\n", n.Type)
	fmt.Fprintf(&b, "- **Duration:** %d minutes\n", n.Duration)
	fmt.Fprintf(&b, "- **Location:** %s\n\n", n.Location)
	b.WriteString("Please arrive 10 minutes early. If you need to reschedule, reply to this email or contact the clinic.\n")
	return b.String()
}

func updatedBody(clinicName string, n UpdatedNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s — Appointment Updated\n\n", clinicName)
	fmt.Fprintf(&b, "Dear %s,\n\n", n.PatientName)
	b.WriteString("Your appointment has been updated. The current details are:\n\n")
	fmt.Fprintf(&b, "- **Title:** %s\n", n.Title)
	fmt.Fprintf(&b, "- **Date & Time:** %s\n", n.When)
	if n.Location != "" {
		fmt.Fprintf(&b, "- **Location:** %s\n", n.Location)
	}
	if n.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", n.Description)
	}
	b.WriteString("\nIf anything looks wrong, reply to this email and we will fix it.\n")
	return b.String()
}

func cancelledBody(clinicName string, n CancelledNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s — Appointment Cancelled\n\n", clinicName)
	fmt.Fprintf(&b, "Dear %s,\n\n", n.PatientName)
	fmt.Fprintf(&b, "Your appointment (`%s`) on %s has been cancelled.\n\n", n.EventID, n.When)
	if n.Type != "" {
		fmt.Fprintf(&b, "- **Type:** %s\n", n.Type)
	}
	if n.Reason != "" {
		fmt.Fprintf(&b, "- **Reason:** %s\n", n.Reason)
	}
	b.WriteString("\nYou are welcome to book a new appointment at any time.\n")
	return b.String()
}
