// Package calendar wraps the Google Calendar API behind the domain's
// Calendar interface.
package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/user/calbot/internal/types"
)

// callTimeout bounds every provider call so a hung request surfaces as a
// recoverable error instead of stalling the intake loop.
const callTimeout = 30 * time.Second

// Client is an authenticated handle to one user's calendar.
type Client struct {
	svc        *gcal.Service
	calendarID string
}

// NewClient builds a calendar handle from the given token source.
func NewClient(ctx context.Context, src oauth2.TokenSource, calendarID string) (*Client, error) {
	svc, err := gcal.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{svc: svc, calendarID: calendarID}, nil
}

// Create inserts the event and returns it with the provider-assigned ID and
// confirmation link filled in.
func (c *Client) Create(ctx context.Context, event *types.Event) (*types.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	created, err := c.svc.Events.Insert(c.calendarID, toAPIEvent(event)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return fromAPIEvent(created), nil
}

// List returns the calendar's events in the provider's native order.
func (c *Client) List(ctx context.Context) ([]*types.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	res, err := c.svc.Events.List(c.calendarID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]*types.Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, fromAPIEvent(item))
	}
	return events, nil
}

// Delete removes the event with the given provider ID.
func (c *Client) Delete(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := c.svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// toAPIEvent serializes timestamps in UTC and attaches the fixed reminder
// policy: one email reminder a day before, one popup 10 minutes before.
func toAPIEvent(event *types.Event) *gcal.Event {
	return &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Start: &gcal.EventDateTime{
			DateTime: event.Start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &gcal.EventDateTime{
			DateTime: event.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
}

func fromAPIEvent(item *gcal.Event) *types.Event {
	event := &types.Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Link:        item.HtmlLink,
	}
	if item.Start != nil && item.Start.DateTime != "" {
		event.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
	}
	if item.End != nil && item.End.DateTime != "" {
		event.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
	}
	return event
}
