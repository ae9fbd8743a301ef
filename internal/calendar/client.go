package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/kliniksehat/alicia/internal/httpkit"
)

// Config holds the CalDAV connection settings for the appointment
// calendar.
type Config struct {
	URL      string // CalDAV endpoint
	Username string
	Password string
	Path     string // Collection path holding appointment events
	Timezone string // Clinic timezone (default Asia/Jakarta)
}

// Client wraps a CalDAV calendar collection holding the doctor's
// appointments. All event instants are normalized to the clinic
// timezone on the way in and out.
type Client struct {
	dav    *caldav.Client
	path   string
	loc    *time.Location
	logger *slog.Logger
}

// NewClient connects to the configured CalDAV collection.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Jakarta"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	httpClient := httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))
	var hc webdav.HTTPClient = httpClient
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}

	dav, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create CalDAV client: %w", err)
	}

	return &Client{
		dav:    dav,
		path:   strings.TrimRight(cfg.Path, "/") + "/",
		loc:    loc,
		logger: logger.With("component", "calendar"),
	}, nil
}

// Location returns the clinic timezone.
func (c *Client) Location() *time.Location {
	return c.loc
}

// objectPath maps an event id to its object path in the collection.
func (c *Client) objectPath(id string) string {
	return path.Join(c.path, id) + ".ics"
}

// ListEvents returns events overlapping [start, end), flattened and
// sorted by start time, capped at max entries.
func (c *Client) ListEvents(ctx context.Context, start, end time.Time, max int) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	}

	objects, err := c.dav.QueryCalendar(ctx, c.path, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	events := make([]Event, 0, len(objects))
	for _, obj := range objects {
		ev, err := eventFromICal(obj.Data, c.loc)
		if err != nil {
			c.logger.Warn("skipping malformed calendar object", "path", obj.Path, "error", err)
			continue
		}
		events = append(events, *ev)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	if max > 0 && len(events) > max {
		events = events[:max]
	}

	c.logger.Debug("listed events",
		"window_start", start,
		"window_end", end,
		"count", len(events),
	)
	return events, nil
}

// GetEvent fetches a single event by id. Returns ErrEventNotFound when
// no event exists under that id.
func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	obj, err := c.dav.GetCalendarObject(ctx, c.objectPath(id))
	if err != nil {
		if isNotFound(err) {
			return nil, &ErrEventNotFound{ID: id}
		}
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return eventFromICal(obj.Data, c.loc)
}

// CreateEvent writes a new event and returns it with its assigned id.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (*Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	ev.ID = id.String()
	ev.Start = ev.Start.In(c.loc)
	ev.End = ev.End.In(c.loc)

	if _, err := c.dav.PutCalendarObject(ctx, c.objectPath(ev.ID), ev.toICal()); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	c.logger.Info("event created", "id", ev.ID, "start", ev.Start)
	return &ev, nil
}

// UpdateEvent overwrites the stored event. The caller is expected to
// have read the existing event and overlaid only the changed fields.
func (c *Client) UpdateEvent(ctx context.Context, ev Event) (*Event, error) {
	if ev.ID == "" {
		return nil, fmt.Errorf("update event: missing id")
	}
	ev.Start = ev.Start.In(c.loc)
	ev.End = ev.End.In(c.loc)

	if _, err := c.dav.PutCalendarObject(ctx, c.objectPath(ev.ID), ev.toICal()); err != nil {
		if isNotFound(err) {
			return nil, &ErrEventNotFound{ID: ev.ID}
		}
		return nil, fmt.Errorf("update event %s: %w", ev.ID, err)
	}

	c.logger.Info("event updated", "id", ev.ID, "start", ev.Start)
	return &ev, nil
}

// DeleteEvent removes the event permanently.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := c.dav.RemoveAll(ctx, c.objectPath(id)); err != nil {
		if isNotFound(err) {
			return &ErrEventNotFound{ID: id}
		}
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	c.logger.Info("event deleted", "id", id)
	return nil
}

// Ping verifies the collection is reachable.
func (c *Client) Ping(ctx context.Context) error {
	now := time.Now()
	_, err := c.ListEvents(ctx, now, now.Add(time.Hour), 1)
	return err
}

// isNotFound reports whether err is a CalDAV 404. go-webdav keeps its
// HTTPError type in an internal package, so the status can only be
// matched from the error chain's text.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "404 Not Found")
}

// ErrEventNotFound is returned when an event id does not exist in the
// calendar. Tool handlers convert it to a patient-facing message.
type ErrEventNotFound struct {
	ID string
}

func (e *ErrEventNotFound) Error() string {
	return fmt.Sprintf("no appointment found with id %q", e.ID)
}
