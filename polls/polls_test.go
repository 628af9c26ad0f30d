// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package polls

import (
	"errors"
	"testing"
	"time"

	"github.com/bogrum/meetpoll-slackbot/models"
	"github.com/bogrum/meetpoll-slackbot/testutil"
)

func TestCreatePoll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	messenger := &testutil.FakeMessenger{}
	svc := NewService(db, messenger)

	poll, err := svc.Create("Lunch spot?", "U1", "C1", []string{"A", "B", "C"}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if poll.Status != models.PollStatusOpen {
		t.Errorf("Expected status open, got %s", poll.Status)
	}

	options, err := svc.Options(poll.ID)
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if len(options) != 3 {
		t.Fatalf("Expected 3 options, got %d", len(options))
	}
	for i, want := range []string{"A", "B", "C"} {
		if options[i].Text != want {
			t.Errorf("Expected option %d to be %q, got %q", i, want, options[i].Text)
		}
	}

	if len(messenger.Posts) != 1 {
		t.Errorf("Expected 1 announcement, got %d", len(messenger.Posts))
	}
	got, err := svc.Get(poll.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageTS == "" {
		t.Error("Expected message timestamp to be recorded")
	}
}

func TestCreatePollValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)

	tests := []struct {
		name     string
		question string
		options  []string
	}{
		{"empty question", "", []string{"A", "B"}},
		{"one option", "Q?", []string{"A"}},
		{"duplicate options", "Q?", []string{"A", "A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(tt.question, "U1", "C1", tt.options, nil)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestToggleVote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	pollID, optionIDs := testutil.CreateTestPoll(t, db, "Q?", "A", "B", "C")

	// First toggle adds
	added, err := svc.ToggleVote(pollID, "U1", optionIDs[0])
	if err != nil {
		t.Fatalf("ToggleVote failed: %v", err)
	}
	if !added {
		t.Error("Expected first toggle to add the vote")
	}

	// Toggling a second option leaves the first in place
	if _, err := svc.ToggleVote(pollID, "U1", optionIDs[1]); err != nil {
		t.Fatalf("ToggleVote failed: %v", err)
	}
	votes, err := svc.UserVotes(pollID, "U1")
	if err != nil {
		t.Fatalf("UserVotes failed: %v", err)
	}
	if len(votes) != 2 {
		t.Errorf("Expected 2 votes, got %d", len(votes))
	}

	// Second toggle on the same option removes
	added, err = svc.ToggleVote(pollID, "U1", optionIDs[0])
	if err != nil {
		t.Fatalf("ToggleVote failed: %v", err)
	}
	if added {
		t.Error("Expected second toggle to remove the vote")
	}
	votes, _ = svc.UserVotes(pollID, "U1")
	if len(votes) != 1 || votes[0] != optionIDs[1] {
		t.Errorf("Expected only the second option to remain, got %v", votes)
	}
}

func TestSetUserVotesReplacesSelection(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	pollID, optionIDs := testutil.CreateTestPoll(t, db, "Q?", "A", "B", "C")

	if err := svc.SetUserVotes(pollID, "U1", []string{optionIDs[0], optionIDs[1]}); err != nil {
		t.Fatalf("SetUserVotes failed: %v", err)
	}
	if err := svc.SetUserVotes(pollID, "U1", []string{optionIDs[2]}); err != nil {
		t.Fatalf("SetUserVotes failed: %v", err)
	}

	votes, err := svc.UserVotes(pollID, "U1")
	if err != nil {
		t.Fatalf("UserVotes failed: %v", err)
	}
	if len(votes) != 1 || votes[0] != optionIDs[2] {
		t.Errorf("Expected selection to be replaced by option C, got %v", votes)
	}
}

func TestVoteOnClosedPoll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	pollID, optionIDs := testutil.CreateTestPoll(t, db, "Q?", "A", "B")

	if _, err := db.Exec(`UPDATE polls SET status = 'closed' WHERE id = $1`, pollID); err != nil {
		t.Fatalf("Failed to close poll: %v", err)
	}

	if _, err := svc.ToggleVote(pollID, "U1", optionIDs[0]); !errors.Is(err, models.ErrPollClosed) {
		t.Errorf("Expected ErrPollClosed from ToggleVote, got %v", err)
	}
	if err := svc.SetUserVotes(pollID, "U1", []string{optionIDs[0]}); !errors.Is(err, models.ErrPollClosed) {
		t.Errorf("Expected ErrPollClosed from SetUserVotes, got %v", err)
	}
}

func TestCloseRequiresCreator(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	pollID, _ := testutil.CreateTestPoll(t, db, "Q?", "A", "B")

	if err := svc.Close(pollID, "U_SOMEONE_ELSE"); !errors.Is(err, models.ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized, got %v", err)
	}

	if err := svc.Close(pollID, "U_CREATOR"); err != nil {
		t.Fatalf("Close by creator failed: %v", err)
	}
	poll, _ := svc.Get(pollID)
	if poll.Status != models.PollStatusClosed {
		t.Errorf("Expected status closed, got %s", poll.Status)
	}

	// Second close is rejected
	if err := svc.Close(pollID, "U_CREATOR"); !errors.Is(err, models.ErrPollClosed) {
		t.Errorf("Expected ErrPollClosed on double close, got %v", err)
	}
}

func TestCloseExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	messenger := &testutil.FakeMessenger{}
	svc := NewService(db, messenger)

	pollID, _ := testutil.CreateTestPoll(t, db, "Expired?", "A", "B")
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := db.Exec(`UPDATE polls SET closes_at = $1, message_ts = 'ts1' WHERE id = $2`, past, pollID); err != nil {
		t.Fatalf("Failed to set deadline: %v", err)
	}

	keepID, _ := testutil.CreateTestPoll(t, db, "Still open?", "A", "B")
	future := time.Now().UTC().Add(time.Hour)
	if _, err := db.Exec(`UPDATE polls SET closes_at = $1 WHERE id = $2`, future, keepID); err != nil {
		t.Fatalf("Failed to set deadline: %v", err)
	}

	if err := svc.CloseExpired(); err != nil {
		t.Fatalf("CloseExpired failed: %v", err)
	}

	expired, _ := svc.Get(pollID)
	if expired.Status != models.PollStatusClosed {
		t.Errorf("Expected expired poll closed, got %s", expired.Status)
	}
	kept, _ := svc.Get(keepID)
	if kept.Status != models.PollStatusOpen {
		t.Errorf("Expected future poll still open, got %s", kept.Status)
	}
	if len(messenger.Updates) != 1 {
		t.Errorf("Expected 1 closing announcement update, got %d", len(messenger.Updates))
	}

	// A second pass finds nothing to close
	if err := svc.CloseExpired(); err != nil {
		t.Fatalf("CloseExpired failed: %v", err)
	}
	if len(messenger.Updates) != 1 {
		t.Errorf("Expected no further announcements, got %d", len(messenger.Updates))
	}
}

func TestResults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewService(db, nil)
	pollID, optionIDs := testutil.CreateTestPoll(t, db, "Q?", "A", "B")

	// U1 votes both options, U2 votes A only
	if err := svc.SetUserVotes(pollID, "U1", optionIDs); err != nil {
		t.Fatalf("SetUserVotes failed: %v", err)
	}
	if err := svc.SetUserVotes(pollID, "U2", []string{optionIDs[0]}); err != nil {
		t.Fatalf("SetUserVotes failed: %v", err)
	}

	results, total, err := svc.Results(pollID)
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if total != 2 {
		t.Errorf("Expected 2 distinct voters, got %d", total)
	}
	if results[0].VoteCount != 2 || results[1].VoteCount != 1 {
		t.Errorf("Expected counts [2 1], got [%d %d]", results[0].VoteCount, results[1].VoteCount)
	}
}
