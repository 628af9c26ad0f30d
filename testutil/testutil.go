// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bogrum/meetpoll-slackbot/db"
	"github.com/bogrum/meetpoll-slackbot/models"
)

// SetupTestDB creates a fresh sqlite database in a temp dir with the
// full schema applied. The database is closed automatically when the
// test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.CreateSchema(database); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return database
}

// CreateTestPoll inserts an open poll with the given options and
// returns the poll id and option ids in order.
func CreateTestPoll(t *testing.T, database *sql.DB, question string, options ...string) (string, []string) {
	t.Helper()

	pollID := uuid.New().String()
	_, err := database.Exec(`
		INSERT INTO polls (id, question, creator_id, channel_id, created_at, status)
		VALUES ($1, $2, 'U_CREATOR', 'C_TEST', $3, 'open')
	`, pollID, question, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to insert poll: %v", err)
	}

	optionIDs := make([]string, 0, len(options))
	for i, text := range options {
		id := uuid.New().String()
		_, err := database.Exec(`
			INSERT INTO options (id, poll_id, option_text, option_order) VALUES ($1, $2, $3, $4)
		`, id, pollID, text, i)
		if err != nil {
			t.Fatalf("failed to insert option: %v", err)
		}
		optionIDs = append(optionIDs, id)
	}
	return pollID, optionIDs
}

// CreateTestEvent inserts a scheduled event starting at startsAt.
// maxAttendees <= 0 means unlimited.
func CreateTestEvent(t *testing.T, database *sql.DB, title string, startsAt time.Time, maxAttendees int) string {
	t.Helper()

	id := uuid.New().String()
	var max any
	if maxAttendees > 0 {
		max = maxAttendees
	}
	_, err := database.Exec(`
		INSERT INTO events (id, title, starts_at, max_attendees, creator_id, channel_id, status, created_at)
		VALUES ($1, $2, $3, $4, 'U_CREATOR', 'C_TEST', 'scheduled', $5)
	`, id, title, startsAt.UTC(), max, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
	return id
}

// CreateTestMember inserts a member record at the given stage.
func CreateTestMember(t *testing.T, database *sql.DB, email, stage string, rowTS time.Time) {
	t.Helper()

	_, err := database.Exec(`
		INSERT INTO members (email, first_name, last_name, committees, stage, first_seen, row_ts)
		VALUES ($1, 'Test', 'Member', '', $2, $3, $3)
	`, email, stage, rowTS.UTC())
	if err != nil {
		t.Fatalf("failed to insert member: %v", err)
	}
}

// MemberStage reads a member's current stage.
func MemberStage(t *testing.T, database *sql.DB, email string) string {
	t.Helper()

	var stage string
	if err := database.QueryRow(`SELECT stage FROM members WHERE email = $1`, email).Scan(&stage); err != nil {
		t.Fatalf("failed to read member stage: %v", err)
	}
	return stage
}

// Registration builds a registration row for feed-in tests.
func Registration(email string, ts time.Time, committees ...string) models.Registration {
	return models.Registration{
		Email:      email,
		FirstName:  "Test",
		LastName:   "Member",
		Committees: committees,
		Timestamp:  ts.UTC(),
	}
}
