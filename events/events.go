// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/bogrum/meetpoll-slackbot/models"
)

// Messenger posts event announcements and reminder DMs.
type Messenger interface {
	PostMessage(channel, text string) (string, error)
	UpdateMessage(channel, ts, text string) error
	SendDirectMessage(userID, text string) error
}

type Service struct {
	db        *sql.DB
	messenger Messenger
}

func NewService(db *sql.DB, messenger Messenger) *Service {
	return &Service{db: db, messenger: messenger}
}

// Create validates and persists an event, then posts its announcement.
func (s *Service) Create(title, description, location string, startsAt time.Time, maxAttendees *int, creatorID, channelID string) (models.Event, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Event{}, fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if startsAt.IsZero() {
		return models.Event{}, fmt.Errorf("%w: start time is required", models.ErrValidation)
	}
	if maxAttendees != nil && *maxAttendees < 1 {
		return models.Event{}, fmt.Errorf("%w: capacity must be a positive number", models.ErrValidation)
	}

	ev := models.Event{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  strings.TrimSpace(description),
		Location:     strings.TrimSpace(location),
		StartsAt:     startsAt.UTC(),
		MaxAttendees: maxAttendees,
		CreatorID:    creatorID,
		ChannelID:    channelID,
		Status:       models.EventStatusScheduled,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, title, description, location, starts_at, max_attendees, creator_id, channel_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ev.ID, ev.Title, ev.Description, ev.Location, ev.StartsAt, ev.MaxAttendees, ev.CreatorID, ev.ChannelID, ev.Status, ev.CreatedAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}

	slog.Info("event created", "event_id", ev.ID, "title", title, "creator", creatorID)

	if s.messenger != nil {
		ts, err := s.messenger.PostMessage(channelID, "New event: "+title)
		if err != nil {
			slog.Error("failed to post event announcement", "event_id", ev.ID, "error", err)
		} else if _, err := s.db.Exec(`UPDATE events SET message_ts = $1 WHERE id = $2`, ts, ev.ID); err != nil {
			slog.Error("failed to store event message handle", "event_id", ev.ID, "error", err)
		} else {
			ev.MessageTS = ts
		}
	}

	return ev, nil
}

func (s *Service) Get(eventID string) (models.Event, error) {
	var ev models.Event
	err := s.db.QueryRow(`
		SELECT id, title, COALESCE(description, ''), COALESCE(location, ''), starts_at,
		       max_attendees, creator_id, channel_id, COALESCE(message_ts, ''), status, created_at
		FROM events WHERE id = $1
	`, eventID).Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Location, &ev.StartsAt,
		&ev.MaxAttendees, &ev.CreatorID, &ev.ChannelID, &ev.MessageTS, &ev.Status, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Event{}, models.ErrNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("query event: %w", err)
	}
	return ev, nil
}

// SetRSVP records a user's response, latest wins. A transition to "going"
// is rejected without side effects when the event is at capacity; the
// capacity read and the write share one transaction so two concurrent
// attempts cannot both squeeze past the limit.
func (s *Service) SetRSVP(eventID, userID, response string) error {
	switch response {
	case models.RSVPGoing, models.RSVPMaybe, models.RSVPNotGoing:
	default:
		return fmt.Errorf("%w: unknown RSVP response %q", models.ErrValidation, response)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	var maxAttendees *int
	err = tx.QueryRow(`SELECT status, max_attendees FROM events WHERE id = $1`, eventID).Scan(&status, &maxAttendees)
	if err == sql.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query event: %w", err)
	}
	if status == models.EventStatusClosed {
		return models.ErrEventClosed
	}

	if response == models.RSVPGoing && maxAttendees != nil {
		var going int
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM rsvps
			WHERE event_id = $1 AND response = $2 AND user_id != $3
		`, eventID, models.RSVPGoing, userID).Scan(&going)
		if err != nil {
			return fmt.Errorf("count going: %w", err)
		}
		if going >= *maxAttendees {
			return models.ErrCapacityFull
		}
	}

	_, err = tx.Exec(`
		INSERT INTO rsvps (event_id, user_id, response, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET response = excluded.response, updated_at = excluded.updated_at
	`, eventID, userID, response, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert rsvp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rsvp: %w", err)
	}

	slog.Info("rsvp recorded", "event_id", eventID, "user", userID, "response", response)
	return nil
}

func (s *Service) RSVPCounts(eventID string) (models.RSVPCounts, error) {
	rows, err := s.db.Query(`
		SELECT response, COUNT(*) FROM rsvps WHERE event_id = $1 GROUP BY response
	`, eventID)
	if err != nil {
		return models.RSVPCounts{}, fmt.Errorf("query rsvp counts: %w", err)
	}
	defer rows.Close()

	var counts models.RSVPCounts
	for rows.Next() {
		var response string
		var n int
		if err := rows.Scan(&response, &n); err != nil {
			return models.RSVPCounts{}, fmt.Errorf("scan rsvp count: %w", err)
		}
		switch response {
		case models.RSVPGoing:
			counts.Going = n
		case models.RSVPMaybe:
			counts.Maybe = n
		case models.RSVPNotGoing:
			counts.NotGoing = n
		}
	}
	return counts, rows.Err()
}

// Upcoming lists the next events that have not started yet, soonest first.
func (s *Service) Upcoming(limit int) ([]models.Event, error) {
	rows, err := s.db.Query(`
		SELECT id, title, COALESCE(description, ''), COALESCE(location, ''), starts_at,
		       max_attendees, creator_id, channel_id, COALESCE(message_ts, ''), status, created_at
		FROM events
		WHERE status != $1 AND starts_at > $2
		ORDER BY starts_at
		LIMIT $3
	`, models.EventStatusClosed, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Location, &ev.StartsAt,
			&ev.MaxAttendees, &ev.CreatorID, &ev.ChannelID, &ev.MessageTS, &ev.Status, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SendReminders is the reminder job. For every non-closed event it checks
// the 24h mark and then, independently, the 1h mark; each send advances
// the status exactly one step, so a reminder is delivered at most once.
func (s *Service) SendReminders() error {
	now := time.Now().UTC()

	rows, err := s.db.Query(`
		SELECT id, title, COALESCE(location, ''), starts_at, channel_id, status
		FROM events
		WHERE status IN ($1, $2)
		ORDER BY starts_at
	`, models.EventStatusScheduled, models.EventStatusReminder24h)
	if err != nil {
		return fmt.Errorf("query events for reminders: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id, title, location, channel, status string
		startsAt                             time.Time
	}
	var candidates []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.title, &p.location, &p.startsAt, &p.channel, &p.status); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}

	for _, ev := range candidates {
		status := ev.status

		if status == models.EventStatusScheduled && !now.Before(ev.startsAt.Add(-24*time.Hour)) {
			if err := s.sendReminder(ev.id, ev.title, ev.location, ev.startsAt, status, models.EventStatusReminder24h); err != nil {
				slog.Error("24h reminder failed", "event_id", ev.id, "error", err)
				continue
			}
			status = models.EventStatusReminder24h
		}

		if status == models.EventStatusReminder24h && !now.Before(ev.startsAt.Add(-time.Hour)) {
			if err := s.sendReminder(ev.id, ev.title, ev.location, ev.startsAt, status, models.EventStatusReminder1h); err != nil {
				slog.Error("1h reminder failed", "event_id", ev.id, "error", err)
			}
		}
	}
	return nil
}

// sendReminder DMs every user whose RSVP is not "not_going", then
// advances the status. The guarded UPDATE keeps the transition monotonic;
// a DM failure to one user does not block the others.
func (s *Service) sendReminder(eventID, title, location string, startsAt time.Time, fromStatus, toStatus string) error {
	users, err := s.rsvpUsers(eventID, models.RSVPGoing, models.RSVPMaybe)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Reminder: %s starts %s", title, humanize.Time(startsAt))
	if location != "" {
		text += " at " + location
	}

	if s.messenger != nil {
		for _, userID := range users {
			if err := s.messenger.SendDirectMessage(userID, text); err != nil {
				slog.Warn("could not send reminder", "event_id", eventID, "user", userID, "error", err)
			}
		}
	}

	res, err := s.db.Exec(`
		UPDATE events SET status = $1 WHERE id = $2 AND status = $3
	`, toStatus, eventID, fromStatus)
	if err != nil {
		return fmt.Errorf("advance event status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s no longer in status %s", eventID, fromStatus)
	}

	slog.Info("reminder sent", "event_id", eventID, "status", toStatus, "recipients", len(users))
	return nil
}

// ClosePast is the closer job: any event whose start time has passed is
// closed regardless of reminder state.
func (s *Service) ClosePast() error {
	rows, err := s.db.Query(`
		SELECT id FROM events WHERE status != $1 AND starts_at <= $2
	`, models.EventStatusClosed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("query past events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate past events: %w", err)
	}

	for _, id := range ids {
		slog.Info("auto-closing past event", "event_id", id)
		_, err := s.db.Exec(`
			UPDATE events SET status = $1 WHERE id = $2 AND status != $1
		`, models.EventStatusClosed, id)
		if err != nil {
			slog.Error("failed to close event", "event_id", id, "error", err)
		}
	}
	return nil
}

func (s *Service) rsvpUsers(eventID string, responses ...string) ([]string, error) {
	var users []string
	for _, response := range responses {
		rows, err := s.db.Query(`
			SELECT user_id FROM rsvps WHERE event_id = $1 AND response = $2 ORDER BY updated_at
		`, eventID, response)
		if err != nil {
			return nil, fmt.Errorf("query rsvp users: %w", err)
		}
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan rsvp user: %w", err)
			}
			users = append(users, u)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate rsvp users: %w", err)
		}
	}
	return users, nil
}
