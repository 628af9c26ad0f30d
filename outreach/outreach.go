// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package outreach

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bogrum/meetpoll-slackbot/models"
)

// ContactSource supplies the contact list for an audience.
type ContactSource interface {
	Contacts(audience string) ([]models.Contact, error)
}

// Mailer delivers one outreach email.
type Mailer interface {
	SendOutreach(to, subject, body string) error
}

// Notifier posts progress updates to a channel.
type Notifier interface {
	PostMessage(channelID, text string) (string, error)
}

type Config struct {
	Delay         time.Duration // minimum spacing between sends
	ProgressEvery int           // notify after every N attempts; 0 disables
	NotifyChannel string
}

type Service struct {
	db       *sql.DB
	source   ContactSource
	mailer   Mailer
	notifier Notifier
	cfg      Config
}

func NewService(db *sql.DB, source ContactSource, mailer Mailer, notifier Notifier, cfg Config) *Service {
	if cfg.Delay <= 0 {
		cfg.Delay = 5 * time.Second
	}
	return &Service{db: db, source: source, mailer: mailer, notifier: notifier, cfg: cfg}
}

// Draft snapshots the audience's contact list into a new campaign.
// Later changes to the source never alter a drafted campaign.
func (s *Service) Draft(audience, subject, greeting, body string) (*models.Campaign, error) {
	if audience != models.AudienceAcademics && audience != models.AudienceClubs {
		return nil, fmt.Errorf("%w: unknown audience %q", models.ErrValidation, audience)
	}
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: subject and body are required", models.ErrValidation)
	}
	if s.source == nil {
		return nil, fmt.Errorf("no contact source configured")
	}

	contacts, err := s.source.Contacts(audience)
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("%w: no contacts for audience %q", models.ErrValidation, audience)
	}

	c := &models.Campaign{
		ID:        uuid.New().String(),
		Audience:  audience,
		Subject:   subject,
		Greeting:  greeting,
		Body:      body,
		Status:    models.CampaignStatusDraft,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO campaigns (id, audience, subject, greeting, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Audience, c.Subject, c.Greeting, c.Body, c.Status, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}

	for _, contact := range contacts {
		email := strings.ToLower(strings.TrimSpace(contact.Email))
		if email == "" {
			continue
		}
		_, err = tx.Exec(`
			INSERT INTO campaign_recipients
				(campaign_id, email, first_name, last_name, title, institution, club_name, contact_person, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (campaign_id, email) DO NOTHING
		`, c.ID, email, contact.FirstName, contact.LastName, contact.Title,
			contact.Institution, contact.ClubName, contact.ContactPerson, models.RecipientPending)
		if err != nil {
			return nil, fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("campaign drafted", "campaign", c.ID, "audience", audience, "recipients", len(contacts))
	return c, nil
}

// Preview renders the first few recipients' messages and marks the
// campaign previewed. Nothing is sent.
func (s *Service) Preview(campaignID string) ([]string, error) {
	c, err := s.Get(campaignID)
	if err != nil {
		return nil, err
	}

	recipients, err := s.recipients(campaignID, "", 3)
	if err != nil {
		return nil, err
	}

	previews := make([]string, 0, len(recipients))
	for _, r := range recipients {
		previews = append(previews, fmt.Sprintf("To: %s\nSubject: %s\n\n%s",
			r.Email, c.Subject, renderBody(c, r.Contact)))
	}

	_, err = s.db.Exec(`
		UPDATE campaigns SET status = $1 WHERE id = $2 AND status = $3
	`, models.CampaignStatusPreviewed, campaignID, models.CampaignStatusDraft)
	if err != nil {
		return nil, fmt.Errorf("mark previewed: %w", err)
	}
	return previews, nil
}

// Confirm releases a previewed campaign for sending. The actual sends
// happen on the next scheduler pass, not inline.
func (s *Service) Confirm(campaignID string) error {
	res, err := s.db.Exec(`
		UPDATE campaigns SET status = $1 WHERE id = $2 AND status = $3
	`, models.CampaignStatusSending, campaignID, models.CampaignStatusPreviewed)
	if err != nil {
		return fmt.Errorf("confirm campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c, err := s.Get(campaignID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: campaign is %s, must be previewed before confirming", models.ErrValidation, c.Status)
	}
	slog.Info("campaign confirmed", "campaign", campaignID)
	return nil
}

// Resend queues the listed recipients again, whatever their current
// status, and reopens the campaign if it had completed.
func (s *Service) Resend(campaignID string, emails []string) (int, error) {
	if len(emails) == 0 {
		return 0, fmt.Errorf("%w: no recipients given", models.ErrValidation)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	queued := 0
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		res, err := tx.Exec(`
			UPDATE campaign_recipients SET status = $1, sent_at = NULL
			WHERE campaign_id = $2 AND email = $3
		`, models.RecipientPending, campaignID, email)
		if err != nil {
			return 0, fmt.Errorf("requeue recipient: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			queued++
		}
	}
	if queued == 0 {
		return 0, fmt.Errorf("%w: no matching recipients in campaign", models.ErrNotFound)
	}

	_, err = tx.Exec(`
		UPDATE campaigns SET status = $1 WHERE id = $2 AND status = $3
	`, models.CampaignStatusSending, campaignID, models.CampaignStatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("reopen campaign: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("recipients requeued", "campaign", campaignID, "count", queued)
	return queued, nil
}

// RunPending is the scheduled send pass. It drains every campaign in
// the sending state, pacing the sends and persisting each outcome
// before moving on, so a crash never repeats a delivered email.
func (s *Service) RunPending(ctx context.Context) error {
	rows, err := s.db.Query(`SELECT id FROM campaigns WHERE status = $1 ORDER BY created_at`, models.CampaignStatusSending)
	if err != nil {
		return fmt.Errorf("query sending campaigns: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan campaign: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.drain(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) drain(ctx context.Context, campaignID string) error {
	c, err := s.Get(campaignID)
	if err != nil {
		return err
	}

	pending, err := s.recipients(campaignID, models.RecipientPending, 0)
	if err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Every(s.cfg.Delay), 1)
	sent, failed := 0, 0
	for i, r := range pending {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		if s.mailer == nil {
			slog.Warn("no mailer configured, leaving recipients pending", "campaign", campaignID)
			return nil
		}

		sendErr := s.mailer.SendOutreach(r.Email, c.Subject, renderBody(c, r.Contact))
		status := models.RecipientSent
		var sentAt *time.Time
		if sendErr != nil {
			status = models.RecipientFailed
			failed++
			slog.Error("outreach send failed", "campaign", campaignID, "email", r.Email, "error", sendErr)
		} else {
			sent++
			now := time.Now().UTC()
			sentAt = &now
		}

		_, err = s.db.Exec(`
			UPDATE campaign_recipients SET status = $1, sent_at = $2
			WHERE campaign_id = $3 AND email = $4
		`, status, sentAt, campaignID, r.Email)
		if err != nil {
			return fmt.Errorf("record send outcome: %w", err)
		}

		if s.cfg.ProgressEvery > 0 && (i+1)%s.cfg.ProgressEvery == 0 {
			s.notify(fmt.Sprintf("Outreach campaign %s: %d/%d processed (%d sent, %d failed)",
				campaignID, i+1, len(pending), sent, failed))
		}
	}

	res, err := s.db.Exec(`
		UPDATE campaigns SET status = $1
		WHERE id = $2 AND status = $3
		  AND NOT EXISTS (
			SELECT 1 FROM campaign_recipients
			WHERE campaign_id = $2 AND status = $4
		  )
	`, models.CampaignStatusCompleted, campaignID, models.CampaignStatusSending, models.RecipientPending)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("campaign completed", "campaign", campaignID, "sent", sent, "failed", failed)
		s.notify(fmt.Sprintf("Outreach campaign %s completed: %d sent, %d failed", campaignID, sent, failed))
	}
	return nil
}

func (s *Service) notify(text string) {
	if s.notifier == nil || s.cfg.NotifyChannel == "" {
		return
	}
	if _, err := s.notifier.PostMessage(s.cfg.NotifyChannel, text); err != nil {
		slog.Error("progress notification failed", "error", err)
	}
}

func (s *Service) Get(campaignID string) (*models.Campaign, error) {
	var c models.Campaign
	err := s.db.QueryRow(`
		SELECT id, audience, subject, greeting, body, status, created_at
		FROM campaigns WHERE id = $1
	`, campaignID).Scan(&c.ID, &c.Audience, &c.Subject, &c.Greeting, &c.Body, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: campaign %s", models.ErrNotFound, campaignID)
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	return &c, nil
}

// Status returns per-status recipient counts for a campaign.
func (s *Service) Status(campaignID string) (pending, sent, failed int, err error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id = $1 GROUP BY status
	`, campaignID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("query recipient counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, 0, fmt.Errorf("scan count: %w", err)
		}
		switch status {
		case models.RecipientPending:
			pending = n
		case models.RecipientSent:
			sent = n
		case models.RecipientFailed:
			failed = n
		}
	}
	return pending, sent, failed, rows.Err()
}

// recipients lists a campaign's recipients, optionally filtered by
// status and capped at limit (0 means no cap), in stable email order.
func (s *Service) recipients(campaignID, status string, limit int) ([]models.Recipient, error) {
	q := `
		SELECT campaign_id, email, COALESCE(first_name, ''), COALESCE(last_name, ''),
		       COALESCE(title, ''), COALESCE(institution, ''), COALESCE(club_name, ''),
		       COALESCE(contact_person, ''), status
		FROM campaign_recipients WHERE campaign_id = $1`
	args := []any{campaignID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY email`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.CampaignID, &r.Email, &r.FirstName, &r.LastName,
			&r.Title, &r.Institution, &r.ClubName, &r.ContactPerson, &r.Status); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// renderBody expands the greeting's placeholders for one contact and
// joins it with the shared body. Unknown placeholders pass through.
func renderBody(c *models.Campaign, contact models.Contact) string {
	greeting := strings.NewReplacer(
		"{{first_name}}", contact.FirstName,
		"{{last_name}}", contact.LastName,
		"{{title}}", contact.Title,
		"{{institution}}", contact.Institution,
		"{{club_name}}", contact.ClubName,
		"{{contact_person}}", contact.ContactPerson,
	).Replace(c.Greeting)

	if greeting == "" {
		return c.Body
	}
	return greeting + "\n\n" + c.Body
}
