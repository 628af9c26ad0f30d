// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package outreach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bogrum/meetpoll-slackbot/models"
	"github.com/bogrum/meetpoll-slackbot/testutil"
)

func testContacts() *testutil.FakeContactSource {
	return &testutil.FakeContactSource{ByAudience: map[string][]models.Contact{
		models.AudienceAcademics: {
			{Email: "a@uni.edu", FirstName: "Ada", Title: "Prof.", Institution: "Uni A"},
			{Email: "b@uni.edu", FirstName: "Ben", Title: "Dr.", Institution: "Uni B"},
			{Email: "c@uni.edu", FirstName: "Cem", Title: "Dr.", Institution: "Uni C"},
		},
	}}
}

func newTestService(t *testing.T, mailer *testutil.FakeMailer) (*Service, *testutil.FakeMessenger) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	messenger := &testutil.FakeMessenger{}
	svc := NewService(db, testContacts(), mailer, messenger, Config{
		Delay:         time.Nanosecond,
		ProgressEvery: 2,
		NotifyChannel: "C_NOTIFY",
	})
	return svc, messenger
}

func TestDraftSnapshotsContacts(t *testing.T) {
	svc, _ := newTestService(t, &testutil.FakeMailer{})

	c, err := svc.Draft(models.AudienceAcademics, "Hello", "Dear {{title}} {{last_name}},", "Body text")
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	if c.Status != models.CampaignStatusDraft {
		t.Errorf("Expected status draft, got %s", c.Status)
	}

	pending, sent, failed, err := svc.Status(c.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if pending != 3 || sent != 0 || failed != 0 {
		t.Errorf("Expected 3 pending recipients, got pending=%d sent=%d failed=%d", pending, sent, failed)
	}
}

func TestDraftValidation(t *testing.T) {
	svc, _ := newTestService(t, &testutil.FakeMailer{})

	if _, err := svc.Draft("everyone", "S", "G", "B"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for unknown audience, got %v", err)
	}
	if _, err := svc.Draft(models.AudienceAcademics, "", "G", "B"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for empty subject, got %v", err)
	}
	// No contacts for this audience
	if _, err := svc.Draft(models.AudienceClubs, "S", "G", "B"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error for empty contact list, got %v", err)
	}
}

func TestPreviewRendersWithoutSending(t *testing.T) {
	mailer := &testutil.FakeMailer{}
	svc, _ := newTestService(t, mailer)

	c, err := svc.Draft(models.AudienceAcademics, "Hello", "Dear {{title}} {{first_name}},", "Join us.")
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}

	previews, err := svc.Preview(c.ID)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(previews) != 3 {
		t.Fatalf("Expected 3 previews, got %d", len(previews))
	}
	if !strings.Contains(previews[0], "Dear Prof. Ada,") {
		t.Errorf("Expected rendered greeting in preview, got %q", previews[0])
	}
	if len(mailer.Sent) != 0 {
		t.Errorf("Expected no sends during preview, got %d", len(mailer.Sent))
	}

	got, _ := svc.Get(c.ID)
	if got.Status != models.CampaignStatusPreviewed {
		t.Errorf("Expected status previewed, got %s", got.Status)
	}
}

func TestConfirmRequiresPreview(t *testing.T) {
	svc, _ := newTestService(t, &testutil.FakeMailer{})

	c, err := svc.Draft(models.AudienceAcademics, "Hello", "", "Body")
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}

	if err := svc.Confirm(c.ID); !errors.Is(err, models.ErrValidation) {
		t.Errorf("Expected validation error confirming a draft, got %v", err)
	}

	if _, err := svc.Preview(c.ID); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if err := svc.Confirm(c.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	got, _ := svc.Get(c.ID)
	if got.Status != models.CampaignStatusSending {
		t.Errorf("Expected status sending, got %s", got.Status)
	}
}

func TestRunPendingSendsAndCompletes(t *testing.T) {
	mailer := &testutil.FakeMailer{}
	svc, messenger := newTestService(t, mailer)

	c := confirmCampaign(t, svc)

	if err := svc.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending failed: %v", err)
	}

	if len(mailer.Sent) != 3 {
		t.Errorf("Expected 3 sends, got %d", len(mailer.Sent))
	}
	got, _ := svc.Get(c.ID)
	if got.Status != models.CampaignStatusCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}

	// Progress at every 2nd attempt plus a completion notice
	if len(messenger.Posts) < 2 {
		t.Errorf("Expected progress and completion notifications, got %d posts", len(messenger.Posts))
	}

	// Nothing left to send on the next pass
	if err := svc.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending failed: %v", err)
	}
	if len(mailer.Sent) != 3 {
		t.Errorf("Expected no further sends, got %d", len(mailer.Sent))
	}
}

func TestRunPendingResumesAfterCrash(t *testing.T) {
	mailer := &testutil.FakeMailer{}
	svc, _ := newTestService(t, mailer)

	c := confirmCampaign(t, svc)

	// Simulate a crash after the first recipient was durably marked sent
	if _, err := svc.db.Exec(`
		UPDATE campaign_recipients SET status = $1, sent_at = $2
		WHERE campaign_id = $3 AND email = 'a@uni.edu'
	`, models.RecipientSent, time.Now().UTC(), c.ID); err != nil {
		t.Fatalf("Failed to mark recipient sent: %v", err)
	}

	if err := svc.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending failed: %v", err)
	}

	if len(mailer.Sent) != 2 {
		t.Fatalf("Expected only the 2 unsent recipients, got %d sends", len(mailer.Sent))
	}
	for _, m := range mailer.Sent {
		if m.To == "a@uni.edu" {
			t.Error("Expected no duplicate send to the already-sent recipient")
		}
	}
	got, _ := svc.Get(c.ID)
	if got.Status != models.CampaignStatusCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}
}

func TestFailedRecipientDoesNotBlockCompletion(t *testing.T) {
	mailer := &testutil.FakeMailer{FailFor: map[string]bool{"b@uni.edu": true}}
	svc, _ := newTestService(t, mailer)

	c := confirmCampaign(t, svc)

	if err := svc.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending failed: %v", err)
	}

	pending, sent, failed, err := svc.Status(c.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if pending != 0 || sent != 2 || failed != 1 {
		t.Errorf("Expected sent=2 failed=1, got pending=%d sent=%d failed=%d", pending, sent, failed)
	}
	got, _ := svc.Get(c.ID)
	if got.Status != models.CampaignStatusCompleted {
		t.Errorf("Expected status completed despite failure, got %s", got.Status)
	}

	// sent_at is only stamped for deliveries that actually went out
	var nullStamps int
	if err := svc.db.QueryRow(`
		SELECT COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1 AND status = $2 AND sent_at IS NULL
	`, c.ID, models.RecipientFailed).Scan(&nullStamps); err != nil {
		t.Fatalf("Failed to count failed recipients: %v", err)
	}
	if nullStamps != 1 {
		t.Errorf("Expected failed recipient with NULL sent_at, got %d", nullStamps)
	}
	var stamped int
	if err := svc.db.QueryRow(`
		SELECT COUNT(*) FROM campaign_recipients
		WHERE campaign_id = $1 AND status = $2 AND sent_at IS NOT NULL
	`, c.ID, models.RecipientSent).Scan(&stamped); err != nil {
		t.Fatalf("Failed to count sent recipients: %v", err)
	}
	if stamped != 2 {
		t.Errorf("Expected 2 sent recipients with sent_at set, got %d", stamped)
	}
}

func TestResendReopensCompletedCampaign(t *testing.T) {
	mailer := &testutil.FakeMailer{}
	svc, _ := newTestService(t, mailer)

	c := confirmCampaign(t, svc)
	if err := svc.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending failed: %v", err)
	}

	n, err := svc.Resend(c.ID, []string{"b@uni.edu", "nobody@uni.edu"})
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 recipient requeued, got %d", n)
	}
	got, _ := svc.Get(c.ID)
	if got.Status != models.CampaignStatusSending {
		t.Errorf("Expected status sending after resend, got %s", got.Status)
	}

	if err := svc.RunPending(context.Background()); err != nil {
		t.Fatalf("RunPending failed: %v", err)
	}
	if len(mailer.Sent) != 4 {
		t.Errorf("Expected 3 original sends plus 1 resend, got %d", len(mailer.Sent))
	}
	if mailer.Sent[3].To != "b@uni.edu" {
		t.Errorf("Expected resend to b@uni.edu, got %s", mailer.Sent[3].To)
	}
}

func TestResendUnknownRecipients(t *testing.T) {
	svc, _ := newTestService(t, &testutil.FakeMailer{})
	c := confirmCampaign(t, svc)

	if _, err := svc.Resend(c.ID, []string{"nobody@uni.edu"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func confirmCampaign(t *testing.T, svc *Service) *models.Campaign {
	t.Helper()
	c, err := svc.Draft(models.AudienceAcademics, "Hello", "Dear {{first_name}},", "Join us.")
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	if _, err := svc.Preview(c.ID); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if err := svc.Confirm(c.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	return c
}
