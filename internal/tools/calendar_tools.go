package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kliniksehat/alicia/internal/calendar"
	"github.com/kliniksehat/alicia/internal/email"
	"github.com/kliniksehat/alicia/internal/schedule"
)

func (r *Registry) registerBuiltins() {
	r.register(&Tool{
		Name: "get_doctor_schedule_appointments",
		Description: "Retrieve the doctor's appointment schedule in a time window, " +
			"such as booked dates and times. Use this to help the patient pick a free slot. " +
			"Not for looking up patient records or personal details.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_datetime": map[string]any{
					"type":        "string",
					"description": "Start of the window (format: YYYY-MM-DD HH:MM:SS)",
				},
				"end_datetime": map[string]any{
					"type":        "string",
					"description": "End of the window (format: YYYY-MM-DD HH:MM:SS)",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of events to retrieve (default: 30)",
				},
			},
			"required": []string{"start_datetime", "end_datetime"},
		},
		Handler: r.handleGetSchedule,
	})

	r.register(&Tool{
		Name: "get_event_by_id",
		Description: "Retrieve full details of an appointment by its event ID. " +
			"Use this when the patient provides the ID from their confirmation email.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event_id": map[string]any{
					"type":        "string",
					"description": "Unique ID of the event to retrieve",
				},
			},
			"required": []string{"event_id"},
		},
		Handler: r.handleGetEventByID,
	})

	r.register(&Tool{
		Name: "create_doctor_appointment",
		Description: "Create a doctor appointment for a patient. Validates the requested " +
			"slot against the clinic's weekly availability and sends a confirmation email " +
			"with the event ID on success.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"patient_name": map[string]any{
					"type":        "string",
					"description": "Patient name",
				},
				"patient_email": map[string]any{
					"type":        "string",
					"description": "Patient email",
				},
				"appointment_datetime": map[string]any{
					"type":        "string",
					"description": "Appointment time (format: YYYY-MM-DD HH:MM:SS)",
				},
				"duration_minutes": map[string]any{
					"type":        "integer",
					"description": "Duration in minutes (default: 30)",
				},
				"appointment_type": map[string]any{
					"type":        "string",
					"description": "Type of appointment (Consultation, Follow-up, Medical Check-up, ...)",
				},
				"symptoms": map[string]any{
					"type":        "string",
					"description": "Patient complaints or symptoms",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Notes for the appointment",
				},
				"phone_number": map[string]any{
					"type":        "string",
					"description": "Phone number of the patient",
				},
			},
			"required": []string{"patient_name", "patient_email", "appointment_datetime"},
		},
		Sensitive: true,
		Handler:   r.handleCreateAppointment,
	})

	r.register(&Tool{
		Name: "update_doctor_appointment",
		Description: "Update an existing appointment. Only the supplied fields change; " +
			"everything else is kept. Sends the patient an update notice on success.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event_id": map[string]any{
					"type":        "string",
					"description": "Unique event ID to be updated",
				},
				"patient_name": map[string]any{
					"type":        "string",
					"description": "Patient name",
				},
				"patient_email": map[string]any{
					"type":        "string",
					"description": "Patient email",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "New title (optional)",
				},
				"start_datetime": map[string]any{
					"type":        "string",
					"description": "New start time (optional, format: YYYY-MM-DD HH:MM:SS)",
				},
				"end_datetime": map[string]any{
					"type":        "string",
					"description": "New end time (optional, format: YYYY-MM-DD HH:MM:SS)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "New description (optional)",
				},
				"location": map[string]any{
					"type":        "string",
					"description": "New location (optional)",
				},
			},
			"required": []string{"event_id", "patient_name", "patient_email"},
		},
		Sensitive: true,
		Handler:   r.handleUpdateAppointment,
	})

	r.register(&Tool{
		Name: "cancel_doctor_appointment",
		Description: "Cancel an appointment. Permanently removes the event from the " +
			"calendar and emails the patient a cancellation notice with the reason.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event_id": map[string]any{
					"type":        "string",
					"description": "Unique ID of the event to be cancelled",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Reason for the cancellation",
				},
				"patient_name": map[string]any{
					"type":        "string",
					"description": "Patient name",
				},
				"patient_email": map[string]any{
					"type":        "string",
					"description": "Patient email",
				},
				"appointment_datetime": map[string]any{
					"type":        "string",
					"description": "Date and time of the appointment (format: YYYY-MM-DD HH:MM:SS)",
				},
				"appointment_type": map[string]any{
					"type":        "string",
					"description": "Type of the appointment",
				},
			},
			"required": []string{"event_id", "reason", "patient_name", "patient_email", "appointment_datetime", "appointment_type"},
		},
		Sensitive: true,
		Handler:   r.handleCancelAppointment,
	})

	r.register(&Tool{
		Name: "knowledge_base_tool",
		Description: "Answer questions about the clinic: operating hours, address, " +
			"available services, pricing, insurance, and other clinic information. " +
			"Returns the most relevant excerpts from the clinic's documents.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The question to answer from the knowledge base",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleKnowledgeSearch,
	})
}

func (r *Registry) handleGetSchedule(ctx context.Context, args map[string]any) (string, error) {
	start, err := timeArg(args, "start_datetime", r.deps.Location)
	if err != nil {
		return failure("%v", err)
	}
	end, err := timeArg(args, "end_datetime", r.deps.Location)
	if err != nil {
		return failure("%v", err)
	}
	max := intArg(args, "max_results", 30)

	events, err := r.deps.Calendar.ListEvents(ctx, start, end, max)
	if err != nil {
		r.deps.Logger.Error("list events failed", "error", err)
		return failure("Error retrieving schedule: %v", err)
	}

	slots := make([]calendar.Slot, 0, len(events))
	for i := range events {
		slots = append(slots, events[i].Slot())
	}

	return result{
		Success: true,
		Events:  slots,
		Count:   len(slots),
		Message: fmt.Sprintf("Retrieved %d appointments", len(slots)),
	}.encode()
}

func (r *Registry) handleGetEventByID(ctx context.Context, args map[string]any) (string, error) {
	eventID := stringArg(args, "event_id")

	ev, err := r.deps.Calendar.GetEvent(ctx, eventID)
	if err != nil {
		var notFound *calendar.ErrEventNotFound
		if errors.As(err, &notFound) {
			return failure("%v", notFound)
		}
		r.deps.Logger.Error("get event failed", "id", eventID, "error", err)
		return failure("Error retrieving appointment: %v", err)
	}

	return result{
		Success: true,
		Event:   ev,
		Message: ev.Details(),
	}.encode()
}

func (r *Registry) handleCreateAppointment(ctx context.Context, args map[string]any) (string, error) {
	patientName := stringArg(args, "patient_name")
	patientEmail := stringArg(args, "patient_email")
	start, err := timeArg(args, "appointment_datetime", r.deps.Location)
	if err != nil {
		return failure("%v", err)
	}
	duration := intArg(args, "duration_minutes", 30)
	apptType := stringArgDefault(args, "appointment_type", "Consultation")
	symptoms := stringArg(args, "symptoms")
	notes := stringArg(args, "notes")
	phone := stringArg(args, "phone_number")

	if err := r.deps.Schedule.Validate(start, time.Duration(duration)*time.Minute); err != nil {
		var rej *schedule.RejectionError
		if errors.As(err, &rej) {
			return failure("%s", rej.Message)
		}
		return failure("%v", err)
	}

	description := []string{
		"Patient Name: " + patientName,
		"Patient Email: " + patientEmail,
		fmt.Sprintf("Duration: %d minutes", duration),
		"Appointment Type: " + apptType,
	}
	if symptoms != "" {
		description = append(description, "Symptoms: "+symptoms)
	}
	if notes != "" {
		description = append(description, "Notes: "+notes)
	}
	if phone != "" {
		description = append(description, "Phone Number: "+phone)
	}

	ev, err := r.deps.Calendar.CreateEvent(ctx, calendar.Event{
		Title:       fmt.Sprintf("[%s] %s", apptType, patientName),
		Description: strings.Join(description, "\n"),
		Location:    r.deps.ClinicAddress,
		Start:       start,
		End:         start.Add(time.Duration(duration) * time.Minute),
	})
	if err != nil {
		r.deps.Logger.Error("create event failed", "error", err)
		return failure("Error creating appointment: %v", err)
	}

	sent := r.deps.Email.SendAppointmentCreated(ctx, email.CreatedNotice{
		PatientName:  patientName,
		PatientEmail: patientEmail,
		EventID:      ev.ID,
		When:         displayTime(ev.Start),
		Type:         apptType,
		Duration:     duration,
		Location:     r.deps.ClinicAddress,
	})

	msg := fmt.Sprintf("Appointment created and confirmation email sent to %s", patientEmail)
	if !sent.Success {
		r.deps.Logger.Warn("confirmation email failed", "event_id", ev.ID, "error", sent.Message)
		msg = fmt.Sprintf("Appointment created, but the confirmation email could not be sent: %s", sent.Message)
	}

	return result{
		Success: true,
		EventID: ev.ID,
		Message: msg,
	}.encode()
}

func (r *Registry) handleUpdateAppointment(ctx context.Context, args map[string]any) (string, error) {
	eventID := stringArg(args, "event_id")
	patientName := stringArg(args, "patient_name")
	patientEmail := stringArg(args, "patient_email")

	newStart, err := optionalTimeArg(args, "start_datetime", r.deps.Location)
	if err != nil {
		return failure("%v", err)
	}
	newEnd, err := optionalTimeArg(args, "end_datetime", r.deps.Location)
	if err != nil {
		return failure("%v", err)
	}

	existing, err := r.deps.Calendar.GetEvent(ctx, eventID)
	if err != nil {
		var notFound *calendar.ErrEventNotFound
		if errors.As(err, &notFound) {
			return failure("%v", notFound)
		}
		r.deps.Logger.Error("get event failed", "id", eventID, "error", err)
		return failure("Error retrieving appointment: %v", err)
	}

	// Overlay only the supplied fields.
	if title := stringArg(args, "title"); title != "" {
		existing.Title = title
	}
	if desc, ok := args["description"].(string); ok {
		existing.Description = desc
	}
	if loc := stringArg(args, "location"); loc != "" {
		existing.Location = loc
	}
	if !newStart.IsZero() {
		existing.Start = newStart
	}
	if !newEnd.IsZero() {
		existing.End = newEnd
	}

	updated, err := r.deps.Calendar.UpdateEvent(ctx, *existing)
	if err != nil {
		r.deps.Logger.Error("update event failed", "id", eventID, "error", err)
		return failure("Error updating appointment: %v", err)
	}

	sent := r.deps.Email.SendAppointmentUpdated(ctx, email.UpdatedNotice{
		PatientName:  patientName,
		PatientEmail: patientEmail,
		Title:        updated.Title,
		When:         displayTime(updated.Start),
		Description:  updated.Description,
		Location:     updated.Location,
	})
	if !sent.Success {
		r.deps.Logger.Warn("update email failed", "event_id", eventID, "error", sent.Message)
	}

	return result{
		Success: true,
		EventID: updated.ID,
		Message: fmt.Sprintf("Appointment %q successfully updated", updated.ID),
	}.encode()
}

func (r *Registry) handleCancelAppointment(ctx context.Context, args map[string]any) (string, error) {
	eventID := stringArg(args, "event_id")
	reason := stringArg(args, "reason")
	patientName := stringArg(args, "patient_name")
	patientEmail := stringArg(args, "patient_email")
	apptType := stringArg(args, "appointment_type")
	when, err := timeArg(args, "appointment_datetime", r.deps.Location)
	if err != nil {
		return failure("%v", err)
	}

	if err := r.deps.Calendar.DeleteEvent(ctx, eventID); err != nil {
		var notFound *calendar.ErrEventNotFound
		if errors.As(err, &notFound) {
			return failure("%v", notFound)
		}
		r.deps.Logger.Error("delete event failed", "id", eventID, "error", err)
		return failure("Error cancelling appointment: %v", err)
	}

	sent := r.deps.Email.SendAppointmentCancelled(ctx, email.CancelledNotice{
		PatientName:  patientName,
		PatientEmail: patientEmail,
		EventID:      eventID,
		When:         displayTime(when),
		Type:         apptType,
		Reason:       reason,
	})
	if !sent.Success {
		r.deps.Logger.Warn("cancellation email failed", "event_id", eventID, "error", sent.Message)
	}

	return result{
		Success: true,
		EventID: eventID,
		Message: fmt.Sprintf("Appointment %q successfully cancelled", eventID),
	}.encode()
}

func (r *Registry) handleKnowledgeSearch(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")

	answer, err := r.deps.Knowledge.Search(ctx, query)
	if err != nil {
		r.deps.Logger.Error("knowledge search failed", "error", err)
		return failure("Error searching knowledge base: %v", err)
	}
	if answer == "" {
		return result{
			Success: true,
			Message: "No relevant information found in the knowledge base.",
		}.encode()
	}

	return result{
		Success: true,
		Answer:  answer,
		Message: "Found relevant clinic information",
	}.encode()
}
