// Package dialog drives the per-user conversation state machine: a linear
// event-creation flow, a deletion-by-listed-index flow, and a read-only
// listing command.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/user/calbot/internal/types"
)

// Menu commands, matched by exact text. The transport shows them as reply
// keyboard buttons.
const (
	CmdStart       = "/start"
	CmdAddEvent    = "Add event"
	CmdDeleteEvent = "Delete event"
	CmdViewEvents  = "View events"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
	skipWord   = "skip"
)

// Sessions resolves a user to an authenticated calendar handle.
type Sessions interface {
	Resolve(ctx context.Context, user types.UserID) (types.Calendar, error)
	Invalidate(user types.UserID)
}

type step int

const (
	stepIdle step = iota
	stepEventName
	stepStartDate
	stepEndDate
	stepStartTime
	stepEndTime
	stepDescription
	stepDeleteIndex
)

// draft is the partially filled event assembled across a creation dialog.
type draft struct {
	summary     string
	startDate   time.Time
	endDate     time.Time
	startTime   time.Time
	endTime     time.Time
	description string
}

// dialog is one user's conversation state. Exactly one per user; a new
// top-level command resets it, discarding any in-progress draft.
type dialog struct {
	step    step
	draft   draft
	pending []*types.Event // deletion snapshot, valid only at stepDeleteIndex
}

// Engine routes each inbound message by the sender's current dialog state.
type Engine struct {
	sessions Sessions

	// mu guards the map only; messages for one user are serialized by the
	// dispatch queue, so a dialog is never touched by two goroutines.
	mu      sync.Mutex
	dialogs map[types.UserID]*dialog
}

// New creates an Engine backed by the given session resolver.
func New(sessions Sessions) *Engine {
	return &Engine{
		sessions: sessions,
		dialogs:  make(map[types.UserID]*dialog),
	}
}

func (e *Engine) dialog(user types.UserID) *dialog {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.dialogs[user]
	if !ok {
		d = &dialog{}
		e.dialogs[user] = d
	}
	return d
}

// HandleMessage processes one inbound message and returns the reply to send.
func (e *Engine) HandleMessage(ctx context.Context, msg *types.InboundMessage) *types.Reply {
	d := e.dialog(msg.UserID)
	text := strings.TrimSpace(msg.Text)

	// Top-level commands win over any in-progress dialog.
	switch text {
	case CmdStart:
		d.reset()
		return e.handleStart(ctx, msg.UserID)
	case CmdAddEvent:
		d.reset()
		d.step = stepEventName
		return &types.Reply{Text: "Enter the event name:"}
	case CmdDeleteEvent:
		d.reset()
		return e.startDeletion(ctx, msg.UserID, d)
	case CmdViewEvents:
		d.reset()
		return e.handleViewEvents(ctx, msg.UserID)
	}

	switch d.step {
	case stepEventName:
		if text == "" {
			return &types.Reply{Text: "The event name cannot be empty. Enter the event name:"}
		}
		d.draft.summary = text
		d.step = stepStartDate
		return &types.Reply{Text: "Enter the start date (YYYY-MM-DD, e.g. 2024-10-15):"}

	case stepStartDate:
		date, err := time.Parse(dateLayout, text)
		if err != nil {
			return &types.Reply{Text: "Invalid date format. Try again."}
		}
		d.draft.startDate = date
		d.step = stepEndDate
		return &types.Reply{Text: "Enter the end date (YYYY-MM-DD, e.g. 2024-10-15):"}

	case stepEndDate:
		date, err := time.Parse(dateLayout, text)
		if err != nil {
			return &types.Reply{Text: "Invalid date format. Try again."}
		}
		d.draft.endDate = date
		d.step = stepStartTime
		return &types.Reply{Text: "Enter the start time (HH:MM, e.g. 14:30):"}

	case stepStartTime:
		clock, err := time.Parse(timeLayout, text)
		if err != nil {
			return &types.Reply{Text: "Invalid time format. Try again."}
		}
		d.draft.startTime = clock
		d.step = stepEndTime
		return &types.Reply{Text: "Enter the end time (HH:MM, e.g. 14:30):"}

	case stepEndTime:
		clock, err := time.Parse(timeLayout, text)
		if err != nil {
			return &types.Reply{Text: "Invalid time format. Try again."}
		}
		d.draft.endTime = clock
		d.step = stepDescription
		return &types.Reply{Text: "Enter a description (or send 'skip'):"}

	case stepDescription:
		if !strings.EqualFold(text, skipWord) {
			d.draft.description = text
		}
		return e.submitDraft(ctx, msg.UserID, d)

	case stepDeleteIndex:
		return e.handleDeletionIndex(ctx, msg.UserID, d, text)
	}

	return &types.Reply{Text: "Choose an action:", ShowMenu: true}
}

// handleStart runs the authorization sequence up front so the user finds
// out immediately whether the bot can reach their calendar.
func (e *Engine) handleStart(ctx context.Context, user types.UserID) *types.Reply {
	if _, err := e.sessions.Resolve(ctx, user); err != nil {
		slog.Error("authorization failed", "user_id", string(user), "error", err)
		return &types.Reply{Text: fmt.Sprintf("Authorization failed: %s", err)}
	}
	return &types.Reply{Text: "You're authorized. Choose an action:", ShowMenu: true}
}

// submitDraft combines the collected date and time fields into UTC
// timestamps and sends the creation request. The user returns to idle
// whether or not the call succeeds.
func (e *Engine) submitDraft(ctx context.Context, user types.UserID, d *dialog) *types.Reply {
	event := &types.Event{
		Summary:     d.draft.summary,
		Description: d.draft.description,
		Start:       combine(d.draft.startDate, d.draft.startTime),
		End:         combine(d.draft.endDate, d.draft.endTime),
	}
	d.reset()

	cal, err := e.sessions.Resolve(ctx, user)
	if err != nil {
		return &types.Reply{Text: fmt.Sprintf("Authorization failed: %s", err), ShowMenu: true}
	}
	created, err := cal.Create(ctx, event)
	if err != nil {
		slog.Error("create event failed", "user_id", string(user), "error", err)
		e.dropStaleSession(user, err)
		return &types.Reply{Text: fmt.Sprintf("Failed to create event: %s", err), ShowMenu: true}
	}

	text := fmt.Sprintf("Event '%s' created!", created.Summary)
	if created.Link != "" {
		text += "\n" + created.Link
	}
	return &types.Reply{Text: text, ShowMenu: true}
}

// startDeletion lists the user's events and snapshots them so the numeric
// reply is resolved against exactly what was shown, even if the calendar
// changes in between.
func (e *Engine) startDeletion(ctx context.Context, user types.UserID, d *dialog) *types.Reply {
	cal, err := e.sessions.Resolve(ctx, user)
	if err != nil {
		return &types.Reply{Text: fmt.Sprintf("Authorization failed: %s", err)}
	}
	events, err := cal.List(ctx)
	if err != nil {
		slog.Error("list events failed", "user_id", string(user), "error", err)
		e.dropStaleSession(user, err)
		return &types.Reply{Text: fmt.Sprintf("Failed to list events: %s", err)}
	}
	if len(events) == 0 {
		return &types.Reply{Text: "You have no events to delete.", ShowMenu: true}
	}

	d.pending = events
	d.step = stepDeleteIndex
	return &types.Reply{
		Text: "Your events:\n" + formatEvents(events) + "\nEnter the number of the event to delete:",
	}
}

func (e *Engine) handleDeletionIndex(ctx context.Context, user types.UserID, d *dialog, text string) *types.Reply {
	i, err := strconv.Atoi(text)
	if err != nil || i < 1 || i > len(d.pending) {
		return &types.Reply{Text: "Invalid event number. Try again."}
	}
	target := d.pending[i-1]
	d.reset()

	cal, err := e.sessions.Resolve(ctx, user)
	if err != nil {
		return &types.Reply{Text: fmt.Sprintf("Authorization failed: %s", err), ShowMenu: true}
	}
	if err := cal.Delete(ctx, target.ID); err != nil {
		slog.Error("delete event failed", "user_id", string(user), "event_id", target.ID, "error", err)
		e.dropStaleSession(user, err)
		return &types.Reply{Text: fmt.Sprintf("Error: %s", err), ShowMenu: true}
	}
	return &types.Reply{Text: fmt.Sprintf("Event '%s' deleted!", displaySummary(target)), ShowMenu: true}
}

func (e *Engine) handleViewEvents(ctx context.Context, user types.UserID) *types.Reply {
	cal, err := e.sessions.Resolve(ctx, user)
	if err != nil {
		return &types.Reply{Text: fmt.Sprintf("Authorization failed: %s", err)}
	}
	events, err := cal.List(ctx)
	if err != nil {
		slog.Error("list events failed", "user_id", string(user), "error", err)
		e.dropStaleSession(user, err)
		return &types.Reply{Text: fmt.Sprintf("Failed to list events: %s", err)}
	}
	if len(events) == 0 {
		return &types.Reply{Text: "You have no events.", ShowMenu: true}
	}
	return &types.Reply{Text: "Your events:\n" + formatEvents(events), ShowMenu: true}
}

// dropStaleSession invalidates the cached calendar handle when the provider
// rejects its credential, so the next action re-runs authorization. Two
// shapes count: a 401/403 API response, and a token-refresh failure from
// the oauth2 transport (a revoked refresh token never reaches the API).
func (e *Engine) dropStaleSession(user types.UserID, err error) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) &&
		(apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		e.sessions.Invalidate(user)
		return
	}
	var refreshErr *oauth2.RetrieveError
	if errors.As(err, &refreshErr) {
		e.sessions.Invalidate(user)
	}
}

func (d *dialog) reset() {
	d.step = stepIdle
	d.draft = draft{}
	d.pending = nil
}

// combine merges a parsed date and a parsed wall-clock time into one UTC
// timestamp.
func combine(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), 0, 0, time.UTC)
}

// formatEvents renders a 1-based numbered list in the order the gateway
// returned, with fallback labels for missing fields.
func formatEvents(events []*types.Event) string {
	var b strings.Builder
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, displaySummary(ev), displayDescription(ev))
	}
	return strings.TrimRight(b.String(), "\n")
}

func displaySummary(ev *types.Event) string {
	if ev.Summary == "" {
		return "untitled"
	}
	return ev.Summary
}

func displayDescription(ev *types.Event) string {
	if ev.Description == "" {
		return "no description"
	}
	return ev.Description
}
