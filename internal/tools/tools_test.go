package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kliniksehat/alicia/internal/calendar"
	"github.com/kliniksehat/alicia/internal/email"
	"github.com/kliniksehat/alicia/internal/schedule"
)

type fakeCalendar struct {
	events  map[string]calendar.Event
	created []calendar.Event
	deleted []string
	listErr error
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]calendar.Event)}
}

func (f *fakeCalendar) ListEvents(_ context.Context, start, end time.Time, max int) ([]calendar.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []calendar.Event
	for _, ev := range f.events {
		if !ev.Start.Before(start) && ev.Start.Before(end) {
			out = append(out, ev)
		}
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func (f *fakeCalendar) GetEvent(_ context.Context, id string) (*calendar.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, &calendar.ErrEventNotFound{ID: id}
	}
	return &ev, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, ev calendar.Event) (*calendar.Event, error) {
	ev.ID = "evt-" + time.Now().Format("150405.000000000")
	f.events[ev.ID] = ev
	f.created = append(f.created, ev)
	return &ev, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, ev calendar.Event) (*calendar.Event, error) {
	if _, ok := f.events[ev.ID]; !ok {
		return nil, &calendar.ErrEventNotFound{ID: ev.ID}
	}
	f.events[ev.ID] = ev
	return &ev, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	if _, ok := f.events[id]; !ok {
		return &calendar.ErrEventNotFound{ID: id}
	}
	delete(f.events, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeNotifier struct {
	created   []email.CreatedNotice
	updated   []email.UpdatedNotice
	cancelled []email.CancelledNotice
}

func (f *fakeNotifier) SendAppointmentCreated(_ context.Context, n email.CreatedNotice) email.Result {
	f.created = append(f.created, n)
	return email.Result{Success: true, Message: "sent"}
}

func (f *fakeNotifier) SendAppointmentUpdated(_ context.Context, n email.UpdatedNotice) email.Result {
	f.updated = append(f.updated, n)
	return email.Result{Success: true, Message: "sent"}
}

func (f *fakeNotifier) SendAppointmentCancelled(_ context.Context, n email.CancelledNotice) email.Result {
	f.cancelled = append(f.cancelled, n)
	return email.Result{Success: true, Message: "sent"}
}

type fakeSearcher struct {
	answer string
	err    error
	query  string
}

func (f *fakeSearcher) Search(_ context.Context, query string) (string, error) {
	f.query = query
	return f.answer, f.err
}

func testRegistry(t *testing.T) (*Registry, *fakeCalendar, *fakeNotifier, *fakeSearcher) {
	t.Helper()
	week, err := schedule.ParseWeekly(map[string]string{
		"monday":    "16:00-20:00",
		"tuesday":   "closed",
		"wednesday": "16:00-20:00",
		"thursday":  "16:00-20:00",
		"friday":    "16:00-20:00",
		"saturday":  "09:00-13:00",
	})
	if err != nil {
		t.Fatal(err)
	}
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatal(err)
	}

	cal := newFakeCalendar()
	mail := &fakeNotifier{}
	kb := &fakeSearcher{answer: "Klinik buka Senin sampai Jumat."}
	reg := NewRegistry(Deps{
		Calendar:      cal,
		Email:         mail,
		Knowledge:     kb,
		Schedule:      week,
		Location:      loc,
		ClinicName:    "Klinik Sehat Bersama",
		ClinicAddress: "Klinik Sehat Bersama, Jl. Merdeka No. 123, Jakarta Pusat",
		Logger:        slog.Default(),
	})
	return reg, cal, mail, kb
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("tool result is not JSON: %v\n%s", err, raw)
	}
	return out
}

func TestCreateAppointmentInsideWindow(t *testing.T) {
	reg, cal, mail, _ := testRegistry(t)

	// Monday 2025-06-02, clinic open 16:00-20:00.
	raw, err := reg.Execute(context.Background(), "create_doctor_appointment", `{
		"patient_name": "Budi Santoso",
		"patient_email": "budi@example.com",
		"appointment_datetime": "2025-06-02 17:00:00",
		"duration_minutes": 30,
		"appointment_type": "Consultation"
	}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	res := decode(t, raw)
	if res["success"] != true {
		t.Fatalf("expected success, got %v", res)
	}
	if id, _ := res["event_id"].(string); id == "" {
		t.Error("expected a non-empty event id")
	}

	if len(cal.created) != 1 {
		t.Fatalf("expected 1 event written, got %d", len(cal.created))
	}
	if got := cal.created[0].End.Sub(cal.created[0].Start); got != 30*time.Minute {
		t.Errorf("expected 30 minute slot, got %v", got)
	}
	if len(mail.created) != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", len(mail.created))
	}
	if mail.created[0].PatientEmail != "budi@example.com" {
		t.Errorf("email recipient: %q", mail.created[0].PatientEmail)
	}
}

func TestCreateAppointmentOnClosedDay(t *testing.T) {
	reg, cal, mail, _ := testRegistry(t)

	// Tuesday 2025-06-03: clinic closed.
	raw, err := reg.Execute(context.Background(), "create_doctor_appointment", `{
		"patient_name": "Budi Santoso",
		"patient_email": "budi@example.com",
		"appointment_datetime": "2025-06-03 10:00:00"
	}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	res := decode(t, raw)
	if res["success"] != false {
		t.Fatalf("expected rejection, got %v", res)
	}
	msg, _ := res["message"].(string)
	if !containsFold(msg, "Tuesday") {
		t.Errorf("rejection should name the closed day, got %q", msg)
	}
	if len(cal.created) != 0 {
		t.Error("no event should be written")
	}
	if len(mail.created) != 0 {
		t.Error("no email should be sent")
	}
}

func TestCreateAppointmentDefaultsDuration(t *testing.T) {
	reg, cal, _, _ := testRegistry(t)

	_, err := reg.Execute(context.Background(), "create_doctor_appointment", `{
		"patient_name": "Siti",
		"patient_email": "siti@example.com",
		"appointment_datetime": "2025-06-02 16:00:00"
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := cal.created[0].End.Sub(cal.created[0].Start); got != 30*time.Minute {
		t.Errorf("default duration should be 30 minutes, got %v", got)
	}
	if cal.created[0].Title != "[Consultation] Siti" {
		t.Errorf("default type should be Consultation, got %q", cal.created[0].Title)
	}
}

func TestUpdateAppointmentOverlaysOnlySuppliedFields(t *testing.T) {
	reg, cal, mail, _ := testRegistry(t)
	loc, _ := time.LoadLocation("Asia/Jakarta")

	cal.events["evt-1"] = calendar.Event{
		ID:          "evt-1",
		Title:       "[Consultation] Budi Santoso",
		Description: "Patient Name: Budi Santoso",
		Location:    "Klinik Sehat Bersama",
		Start:       time.Date(2025, 6, 2, 17, 0, 0, 0, loc),
		End:         time.Date(2025, 6, 2, 17, 30, 0, 0, loc),
	}

	raw, err := reg.Execute(context.Background(), "update_doctor_appointment", `{
		"event_id": "evt-1",
		"patient_name": "Budi Santoso",
		"patient_email": "budi@example.com",
		"start_datetime": "2025-06-04 18:00:00",
		"end_datetime": "2025-06-04 18:30:00"
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if res := decode(t, raw); res["success"] != true {
		t.Fatalf("expected success, got %v", res)
	}

	got := cal.events["evt-1"]
	if got.Title != "[Consultation] Budi Santoso" {
		t.Errorf("title should be untouched, got %q", got.Title)
	}
	if got.Start.Day() != 4 || got.Start.Hour() != 18 {
		t.Errorf("start not updated: %v", got.Start)
	}
	if len(mail.updated) != 1 {
		t.Fatalf("expected 1 update email, got %d", len(mail.updated))
	}
}

func TestCancelAppointment(t *testing.T) {
	reg, cal, mail, _ := testRegistry(t)
	loc, _ := time.LoadLocation("Asia/Jakarta")

	cal.events["evt-9"] = calendar.Event{
		ID:    "evt-9",
		Start: time.Date(2025, 6, 2, 17, 0, 0, 0, loc),
		End:   time.Date(2025, 6, 2, 17, 30, 0, 0, loc),
	}

	raw, err := reg.Execute(context.Background(), "cancel_doctor_appointment", `{
		"event_id": "evt-9",
		"reason": "Dokter berhalangan",
		"patient_name": "Budi Santoso",
		"patient_email": "budi@example.com",
		"appointment_datetime": "2025-06-02 17:00:00",
		"appointment_type": "Consultation"
	}`)
	if err != nil {
		t.Fatal(err)
	}
	if res := decode(t, raw); res["success"] != true {
		t.Fatalf("expected success, got %v", res)
	}
	if len(cal.deleted) != 1 || cal.deleted[0] != "evt-9" {
		t.Errorf("event not deleted: %v", cal.deleted)
	}
	if len(mail.cancelled) != 1 || mail.cancelled[0].Reason != "Dokter berhalangan" {
		t.Errorf("cancellation email: %+v", mail.cancelled)
	}
}

func TestGetEventByIDIsIdempotent(t *testing.T) {
	reg, cal, _, _ := testRegistry(t)
	loc, _ := time.LoadLocation("Asia/Jakarta")

	cal.events["evt-2"] = calendar.Event{
		ID:    "evt-2",
		Title: "[Consultation] Budi Santoso",
		Start: time.Date(2025, 6, 2, 17, 0, 0, 0, loc),
		End:   time.Date(2025, 6, 2, 17, 30, 0, 0, loc),
	}

	first, err := reg.Execute(context.Background(), "get_event_by_id", `{"event_id":"evt-2"}`)
	if err != nil {
		t.Fatal(err)
	}
	second, err := reg.Execute(context.Background(), "get_event_by_id", `{"event_id":"evt-2"}`)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("repeated reads differ:\n%s\n%s", first, second)
	}
}

func TestGetEventByIDNotFound(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	raw, err := reg.Execute(context.Background(), "get_event_by_id", `{"event_id":"missing"}`)
	if err != nil {
		t.Fatal(err)
	}
	res := decode(t, raw)
	if res["success"] != false {
		t.Fatalf("expected failure result, got %v", res)
	}
}

func TestGetScheduleReturnsSlots(t *testing.T) {
	reg, cal, _, _ := testRegistry(t)
	loc, _ := time.LoadLocation("Asia/Jakarta")

	cal.events["evt-3"] = calendar.Event{
		ID:          "evt-3",
		Title:       "[Consultation] Budi Santoso",
		Description: "Patient Email: budi@example.com",
		Start:       time.Date(2025, 6, 2, 17, 0, 0, 0, loc),
		End:         time.Date(2025, 6, 2, 17, 30, 0, 0, loc),
	}

	raw, err := reg.Execute(context.Background(), "get_doctor_schedule_appointments", `{
		"start_datetime": "2025-06-02 00:00:00",
		"end_datetime": "2025-06-03 00:00:00"
	}`)
	if err != nil {
		t.Fatal(err)
	}
	res := decode(t, raw)
	if res["success"] != true || res["count"] != float64(1) {
		t.Fatalf("unexpected result: %v", res)
	}
	// Slots must not leak patient metadata.
	if containsFold(raw, "budi@example.com") {
		t.Errorf("schedule listing leaks patient details: %s", raw)
	}
}

func TestKnowledgeBaseTool(t *testing.T) {
	reg, _, _, kb := testRegistry(t)

	raw, err := reg.Execute(context.Background(), "knowledge_base_tool", `{"query":"jam operasional"}`)
	if err != nil {
		t.Fatal(err)
	}
	res := decode(t, raw)
	if res["success"] != true {
		t.Fatalf("unexpected result: %v", res)
	}
	if kb.query != "jam operasional" {
		t.Errorf("query not forwarded: %q", kb.query)
	}
	if res["answer"] != "Klinik buka Senin sampai Jumat." {
		t.Errorf("answer not returned: %v", res["answer"])
	}
}

func TestExecuteRejectsMissingRequiredField(t *testing.T) {
	reg, cal, _, _ := testRegistry(t)

	_, err := reg.Execute(context.Background(), "create_doctor_appointment", `{
		"patient_name": "Budi Santoso"
	}`)
	if err == nil {
		t.Fatal("expected an error for missing required fields")
	}
	if len(cal.created) != 0 {
		t.Error("handler must not run when validation fails")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	_, err := reg.Execute(context.Background(), "open_pod_bay_doors", `{}`)
	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrToolUnavailable, got %v", err)
	}
}

func TestSensitiveTools(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	sensitive := []string{"create_doctor_appointment", "update_doctor_appointment", "cancel_doctor_appointment"}
	for _, name := range sensitive {
		if !reg.Sensitive(name) {
			t.Errorf("%s should be sensitive", name)
		}
	}
	readOnly := []string{"get_doctor_schedule_appointments", "get_event_by_id", "knowledge_base_tool"}
	for _, name := range readOnly {
		if reg.Sensitive(name) {
			t.Errorf("%s should not be sensitive", name)
		}
	}
}

func TestListDeclaresAllTools(t *testing.T) {
	reg, _, _, _ := testRegistry(t)

	decls := reg.List()
	if len(decls) != 6 {
		t.Fatalf("expected 6 tool declarations, got %d", len(decls))
	}
	fn, _ := decls[0]["function"].(map[string]any)
	if fn["name"] != "get_doctor_schedule_appointments" {
		t.Errorf("declaration order not stable: %v", fn["name"])
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
