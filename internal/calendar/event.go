// Package calendar talks to the doctor's CalDAV calendar and flattens
// provider event records into the shapes the rest of the agent uses.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Event is the internal, flattened appointment record. Times are
// normalized to the clinic timezone.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
}

// Slot is the reduced schedule view exposed to patients: enough to
// pick a free time, nothing about who booked the surrounding slots.
type Slot struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Slot reduces the event for schedule display.
func (e *Event) Slot() Slot {
	return Slot{
		Date:            e.Start.Format("02 January 2006"),
		StartTime:       e.Start.Format("15:04"),
		EndTime:         e.End.Format("15:04"),
		DurationMinutes: int(e.End.Sub(e.Start).Minutes()),
	}
}

// toICal renders the event as a single-VEVENT iCalendar object.
func (e *Event) toICal() *ical.Calendar {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, e.ID)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, time.Now())
	ev.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		ev.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Location != "" {
		ev.Props.SetText(ical.PropLocation, e.Location)
	}
	ev.Props.SetDateTime(ical.PropDateTimeStart, e.Start)
	ev.Props.SetDateTime(ical.PropDateTimeEnd, e.End)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Klinik Sehat Bersama//Alicia//EN")
	cal.Children = append(cal.Children, ev.Component)
	return cal
}

// eventFromICal flattens the first VEVENT in a calendar object into
// the internal shape, with instants converted to loc.
func eventFromICal(cal *ical.Calendar, loc *time.Location) (*Event, error) {
	events := cal.Events()
	if len(events) == 0 {
		return nil, fmt.Errorf("calendar object has no events")
	}
	ev := events[0]

	id, err := ev.Props.Text(ical.PropUID)
	if err != nil {
		return nil, fmt.Errorf("event UID: %w", err)
	}

	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return nil, fmt.Errorf("event DTSTART: %w", err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return nil, fmt.Errorf("event DTEND: %w", err)
	}

	title, _ := ev.Props.Text(ical.PropSummary)
	description, _ := ev.Props.Text(ical.PropDescription)
	location, _ := ev.Props.Text(ical.PropLocation)

	return &Event{
		ID:          id,
		Title:       title,
		Description: description,
		Location:    location,
		Start:       start.In(loc),
		End:         end.In(loc),
	}, nil
}

// Details renders the full event for patient-facing display.
func (e *Event) Details() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", e.Title)
	fmt.Fprintf(&b, "Date: %s\n", e.Start.Format("02 January 2006"))
	fmt.Fprintf(&b, "Time: %s - %s\n", e.Start.Format("15:04"), e.End.Format("15:04"))
	if e.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", e.Location)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", e.Description)
	}
	fmt.Fprintf(&b, "Event ID: %s", e.ID)
	return b.String()
}
