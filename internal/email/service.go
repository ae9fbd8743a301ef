package email

import (
	"context"
	"fmt"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"
)

// Result is the structured outcome returned for every send attempt.
// Delivery failures are captured here, never thrown further: the model
// relays Message to the patient in natural language.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Service sends appointment notification emails to patients.
type Service struct {
	mailer     Mailer
	fromAddr   string
	fromHeader string
	clinicName string
	logger     *slog.Logger
}

// NewService builds the notification service. clinicName appears in
// subjects, bodies, and the From display name.
func NewService(mailer Mailer, cfg SMTPConfig, clinicName string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	sender := cfg.SenderName
	if sender == "" {
		sender = clinicName
	}
	return &Service{
		mailer:     mailer,
		fromAddr:   cfg.From,
		fromHeader: fmt.Sprintf("%s <%s>", sender, cfg.From),
		clinicName: clinicName,
		logger:     logger.With("component", "email"),
	}
}

// SendAppointmentCreated emails the confirmation, with the event id in
// the body and as a QR code attachment.
func (s *Service) SendAppointmentCreated(ctx context.Context, n CreatedNotice) Result {
	opts := ComposeOptions{
		From:    s.fromHeader,
		To:      []string{n.PatientEmail},
		Subject: fmt.Sprintf("Appointment Confirmed - %s", s.clinicName),
		Body:    createdBody(s.clinicName, n),
	}

	// A QR failure is not worth losing the confirmation over.
	if png, err := qrcode.Encode(n.EventID, qrcode.Medium, 256); err == nil {
		opts.Attachments = append(opts.Attachments, Attachment{
			Filename:    "appointment-qr.png",
			ContentType: "image/png",
			Data:        png,
		})
	} else {
		s.logger.Warn("QR code generation failed", "event_id", n.EventID, "error", err)
	}

	return s.deliver(ctx, "created", opts)
}

// SendAppointmentUpdated emails the update notice.
func (s *Service) SendAppointmentUpdated(ctx context.Context, n UpdatedNotice) Result {
	return s.deliver(ctx, "updated", ComposeOptions{
		From:    s.fromHeader,
		To:      []string{n.PatientEmail},
		Subject: fmt.Sprintf("Appointment Updated - %s", s.clinicName),
		Body:    updatedBody(s.clinicName, n),
	})
}

// SendAppointmentCancelled emails the cancellation notice, including
// the stated reason.
func (s *Service) SendAppointmentCancelled(ctx context.Context, n CancelledNotice) Result {
	return s.deliver(ctx, "cancelled", ComposeOptions{
		From:    s.fromHeader,
		To:      []string{n.PatientEmail},
		Subject: fmt.Sprintf("Appointment Cancelled - %s", s.clinicName),
		Body:    cancelledBody(s.clinicName, n),
	})
}

func (s *Service) deliver(ctx context.Context, kind string, opts ComposeOptions) Result {
	msg, err := ComposeMessage(opts)
	if err != nil {
		s.logger.Error("compose failed", "kind", kind, "error", err)
		return Result{Success: false, Message: fmt.Sprintf("Failed to compose %s email: %v", kind, err)}
	}

	if err := s.mailer.SendMail(ctx, s.fromAddr, opts.To, msg); err != nil {
		s.logger.Error("send failed", "kind", kind, "to", opts.To, "error", err)
		return Result{Success: false, Message: fmt.Sprintf("Failed to send %s email: %v", kind, err)}
	}

	s.logger.Info("email sent", "kind", kind, "to", opts.To)
	return Result{Success: true, Message: "Email sent successfully"}
}
