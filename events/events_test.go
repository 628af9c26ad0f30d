// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"errors"
	"testing"
	"time"

	"github.com/bogrum/meetpoll-slackbot/models"
	"github.com/bogrum/meetpoll-slackbot/testutil"
)

func TestSetRSVPLatestWins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	eventID := testutil.CreateTestEvent(t, db, "Meetup", time.Now().Add(48*time.Hour), 0)

	if err := svc.SetRSVP(eventID, "U1", models.RSVPGoing); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}
	if err := svc.SetRSVP(eventID, "U1", models.RSVPNotGoing); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}

	counts, err := svc.RSVPCounts(eventID)
	if err != nil {
		t.Fatalf("RSVPCounts failed: %v", err)
	}
	if counts.Going != 0 || counts.NotGoing != 1 {
		t.Errorf("Expected going=0 not_going=1, got %+v", counts)
	}
}

func TestSetRSVPCapacity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	eventID := testutil.CreateTestEvent(t, db, "Workshop", time.Now().Add(48*time.Hour), 1)

	if err := svc.SetRSVP(eventID, "U1", models.RSVPGoing); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}

	// Second "going" exceeds capacity and leaves no record behind
	if err := svc.SetRSVP(eventID, "U2", models.RSVPGoing); !errors.Is(err, models.ErrCapacityFull) {
		t.Errorf("Expected ErrCapacityFull, got %v", err)
	}
	counts, _ := svc.RSVPCounts(eventID)
	if counts.Going != 1 {
		t.Errorf("Expected 1 going after rejection, got %d", counts.Going)
	}

	// U2 can still answer maybe
	if err := svc.SetRSVP(eventID, "U2", models.RSVPMaybe); err != nil {
		t.Fatalf("SetRSVP maybe failed: %v", err)
	}

	// The holder of the spot may re-confirm without tripping the limit
	if err := svc.SetRSVP(eventID, "U1", models.RSVPGoing); err != nil {
		t.Errorf("Expected re-confirm to succeed, got %v", err)
	}

	// When U1 backs out, the spot opens up
	if err := svc.SetRSVP(eventID, "U1", models.RSVPNotGoing); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}
	if err := svc.SetRSVP(eventID, "U2", models.RSVPGoing); err != nil {
		t.Errorf("Expected freed spot to be claimable, got %v", err)
	}
}

func TestSetRSVPOnClosedEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	eventID := testutil.CreateTestEvent(t, db, "Done", time.Now().Add(-time.Hour), 0)

	if _, err := db.Exec(`UPDATE events SET status = 'closed' WHERE id = $1`, eventID); err != nil {
		t.Fatalf("Failed to close event: %v", err)
	}

	if err := svc.SetRSVP(eventID, "U1", models.RSVPGoing); !errors.Is(err, models.ErrEventClosed) {
		t.Errorf("Expected ErrEventClosed, got %v", err)
	}
}

func TestSendReminders24h(t *testing.T) {
	db := testutil.SetupTestDB(t)
	messenger := &testutil.FakeMessenger{}
	svc := NewService(db, messenger)

	// Inside the 24h window but outside the 1h window
	eventID := testutil.CreateTestEvent(t, db, "Talk", time.Now().Add(20*time.Hour), 0)
	if err := svc.SetRSVP(eventID, "U_GOING", models.RSVPGoing); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}
	if err := svc.SetRSVP(eventID, "U_MAYBE", models.RSVPMaybe); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}
	if err := svc.SetRSVP(eventID, "U_OUT", models.RSVPNotGoing); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}

	if err := svc.SendReminders(); err != nil {
		t.Fatalf("SendReminders failed: %v", err)
	}

	// Going and maybe get DMs; not_going does not
	if len(messenger.DMs) != 2 {
		t.Fatalf("Expected 2 reminder DMs, got %d", len(messenger.DMs))
	}
	for _, dm := range messenger.DMs {
		if dm.UserID == "U_OUT" {
			t.Error("Expected no reminder for not_going user")
		}
	}

	ev, _ := svc.Get(eventID)
	if ev.Status != models.EventStatusReminder24h {
		t.Errorf("Expected status reminder_24h_sent, got %s", ev.Status)
	}

	// A second pass sends nothing new
	if err := svc.SendReminders(); err != nil {
		t.Fatalf("SendReminders failed: %v", err)
	}
	if len(messenger.DMs) != 2 {
		t.Errorf("Expected no duplicate reminders, got %d DMs", len(messenger.DMs))
	}
}

func TestSendRemindersCatchesUpBothSteps(t *testing.T) {
	db := testutil.SetupTestDB(t)
	messenger := &testutil.FakeMessenger{}
	svc := NewService(db, messenger)

	// Already inside the 1h window with no reminder ever sent: one pass
	// delivers both reminders in order.
	eventID := testutil.CreateTestEvent(t, db, "Soon", time.Now().Add(30*time.Minute), 0)
	if err := svc.SetRSVP(eventID, "U1", models.RSVPGoing); err != nil {
		t.Fatalf("SetRSVP failed: %v", err)
	}

	if err := svc.SendReminders(); err != nil {
		t.Fatalf("SendReminders failed: %v", err)
	}

	if len(messenger.DMs) != 2 {
		t.Errorf("Expected 24h and 1h reminders in one pass, got %d DMs", len(messenger.DMs))
	}
	ev, _ := svc.Get(eventID)
	if ev.Status != models.EventStatusReminder1h {
		t.Errorf("Expected status reminder_1h_sent, got %s", ev.Status)
	}
}

func TestClosePast(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)

	pastID := testutil.CreateTestEvent(t, db, "Over", time.Now().Add(-time.Hour), 0)
	futureID := testutil.CreateTestEvent(t, db, "Later", time.Now().Add(time.Hour), 0)

	if err := svc.ClosePast(); err != nil {
		t.Fatalf("ClosePast failed: %v", err)
	}

	past, _ := svc.Get(pastID)
	if past.Status != models.EventStatusClosed {
		t.Errorf("Expected past event closed, got %s", past.Status)
	}
	future, _ := svc.Get(futureID)
	if future.Status != models.EventStatusScheduled {
		t.Errorf("Expected future event scheduled, got %s", future.Status)
	}
}

func TestCreateEventValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)

	if _, err := svc.Create("", "", "", time.Now().Add(time.Hour), nil, "U1", "C1"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for empty title, got %v", err)
	}

	neg := -1
	if _, err := svc.Create("X", "", "", time.Now().Add(time.Hour), &neg, "U1", "C1"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for negative capacity, got %v", err)
	}
}

func TestUpcoming(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)

	testutil.CreateTestEvent(t, db, "Past", time.Now().Add(-time.Hour), 0)
	testutil.CreateTestEvent(t, db, "Second", time.Now().Add(2*time.Hour), 0)
	testutil.CreateTestEvent(t, db, "First", time.Now().Add(time.Hour), 0)

	upcoming, err := svc.Upcoming(10)
	if err != nil {
		t.Fatalf("Upcoming failed: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("Expected 2 upcoming events, got %d", len(upcoming))
	}
	if upcoming[0].Title != "First" || upcoming[1].Title != "Second" {
		t.Errorf("Expected soonest-first ordering, got %s then %s", upcoming[0].Title, upcoming[1].Title)
	}
}
