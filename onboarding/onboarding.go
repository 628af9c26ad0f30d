// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package onboarding

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bogrum/meetpoll-slackbot/models"
)

// cursorSource names the registration source's row in sync_cursors.
const cursorSource = "registrations"

// RowSource reads registration rows newer than the given cursor, in
// source order.
type RowSource interface {
	ReadRowsSince(cursor time.Time) ([]models.Registration, error)
}

// Directory adds members to an external directory group.
type Directory interface {
	AddMember(groupEmail, userEmail string) (models.MembershipResult, error)
}

// WelcomeMailer sends the welcome email artifact.
type WelcomeMailer interface {
	SendWelcome(to, firstName, lastName string) error
}

// Messenger covers the messaging-side onboarding steps: welcome DMs and
// committee channel invites.
type Messenger interface {
	SendDirectMessage(userID, text string) error
	InviteUserToChannel(channelID, userID string) (models.MembershipResult, error)
}

type Config struct {
	WelcomeMethod string    // email, slack_dm, or both
	Cutoff        time.Time // rows first seen before this are skipped; zero disables
	GroupEmail    string    // directory group; empty disables the group-add step
	SuperAdmin    string    // only this user may manage onboard admins
}

type Service struct {
	db        *sql.DB
	source    RowSource
	directory Directory
	mailer    WelcomeMailer
	messenger Messenger
	cfg       Config
}

func NewService(db *sql.DB, source RowSource, directory Directory, mailer WelcomeMailer, messenger Messenger, cfg Config) *Service {
	return &Service{db: db, source: source, directory: directory, mailer: mailer, messenger: messenger, cfg: cfg}
}

// Run is the hourly sync job, also invoked directly by the manual "run"
// command. It ingests source rows newer than the cursor, drives every
// non-terminal record forward one stage at a time, and then advances the
// cursor over the prefix of rows whose outcome is terminal. Returns the
// number of newly ingested rows.
func (s *Service) Run() (int, error) {
	if s.source == nil {
		slog.Warn("no row source configured, skipping sync")
		return 0, s.processPending()
	}

	cursor, err := s.cursor()
	if err != nil {
		return 0, err
	}

	rows, err := s.source.ReadRowsSince(cursor)
	if err != nil {
		return 0, fmt.Errorf("read registration rows: %w", err)
	}

	ingested := 0
	for _, row := range rows {
		created, err := s.ingest(row)
		if err != nil {
			return ingested, err
		}
		if created {
			ingested++
		}
	}

	if err := s.processPending(); err != nil {
		return ingested, err
	}

	if err := s.advanceCursor(cursor, rows); err != nil {
		return ingested, err
	}

	if ingested > 0 {
		slog.Info("onboarding sync ingested new rows", "count", ingested)
	}
	return ingested, nil
}

// ingest records a source row if it is unseen. The cutoff is evaluated
// exactly once, at first sight; a later cutoff change never re-classifies
// an existing record. Reports whether a record was created.
func (s *Service) ingest(row models.Registration) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(row.Email))
	if email == "" {
		return false, nil
	}

	stage := models.StageNew
	if !s.cfg.Cutoff.IsZero() && row.Timestamp.Before(s.cfg.Cutoff) {
		stage = models.StageSkipped
	}

	res, err := s.db.Exec(`
		INSERT INTO members (email, first_name, last_name, committees, stage, first_seen, row_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING
	`, email, row.FirstName, row.LastName, strings.Join(row.Committees, ", "), stage, time.Now().UTC(), row.Timestamp)
	if err != nil {
		return false, fmt.Errorf("insert member %s: %w", email, err)
	}

	n, _ := res.RowsAffected()
	if n > 0 && stage == models.StageSkipped {
		slog.Info("registration before cutoff, skipped", "email", email, "row_ts", row.Timestamp)
	}
	return n > 0 && stage == models.StageNew, nil
}

// processPending advances every member stuck before group_added. Each
// step is durably recorded before the next begins, and a transient
// failure leaves the stage untouched for the next run, never re-sending
// an already-confirmed welcome.
func (s *Service) processPending() error {
	rows, err := s.db.Query(`
		SELECT email, COALESCE(first_name, ''), COALESCE(last_name, ''), stage
		FROM members
		WHERE stage IN ($1, $2)
		ORDER BY row_ts, email
	`, models.StageNew, models.StageWelcomed)
	if err != nil {
		return fmt.Errorf("query pending members: %w", err)
	}
	defer rows.Close()

	type pending struct{ email, first, last, stage string }
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.email, &p.first, &p.last, &p.stage); err != nil {
			return fmt.Errorf("scan pending member: %w", err)
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pending members: %w", err)
	}

	for _, p := range batch {
		stage := p.stage

		if stage == models.StageNew {
			if !s.sendWelcome(p.email, p.first, p.last) {
				continue
			}
			if err := s.advanceStage(p.email, models.StageNew, models.StageWelcomed); err != nil {
				return err
			}
			stage = models.StageWelcomed
		}

		if stage == models.StageWelcomed {
			if !s.addToGroup(p.email) {
				continue
			}
			if err := s.advanceStage(p.email, models.StageWelcomed, models.StageGroupAdded); err != nil {
				return err
			}
		}
	}
	return nil
}

// sendWelcome delivers the email half of the welcome artifact and
// reports whether the stage may advance. When the configured method is
// slack_dm only, there is nothing to send here (the DM goes out on the
// member's join event) and the stage advances immediately.
func (s *Service) sendWelcome(email, first, last string) bool {
	if s.cfg.WelcomeMethod == models.WelcomeDM {
		return true
	}
	if s.mailer == nil {
		slog.Warn("mailer not configured, welcome email deferred", "email", email)
		return false
	}
	if err := s.mailer.SendWelcome(email, first, last); err != nil {
		slog.Error("welcome email failed", "email", email, "error", err)
		return false
	}
	slog.Info("welcome email sent", "email", email)
	return true
}

// addToGroup runs the directory step and reports whether the stage may
// advance. Success and "already a member" both count; an unconfigured
// directory means the step does not exist.
func (s *Service) addToGroup(email string) bool {
	if s.directory == nil || s.cfg.GroupEmail == "" {
		return true
	}
	res, err := s.directory.AddMember(s.cfg.GroupEmail, email)
	if err != nil {
		slog.Error("directory group add failed", "email", email, "group", s.cfg.GroupEmail, "error", err)
		return false
	}
	if res == models.MembershipAlreadyMember {
		slog.Info("already in directory group", "email", email)
	} else {
		slog.Info("added to directory group", "email", email, "group", s.cfg.GroupEmail)
	}
	return true
}

func (s *Service) advanceStage(email, from, to string) error {
	res, err := s.db.Exec(`
		UPDATE members SET stage = $1 WHERE email = $2 AND stage = $3
	`, to, email, from)
	if err != nil {
		return fmt.Errorf("advance %s to %s: %w", email, to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member %s no longer in stage %s", email, from)
	}
	return nil
}

// Seed is the idempotent bootstrap: every existing source row is recorded
// as fully_onboarded with no side effects, and the cursor jumps to the
// newest row. Rows already present keep their current stage. Returns the
// number of rows newly recorded.
func (s *Service) Seed() (int, error) {
	if s.source == nil {
		return 0, fmt.Errorf("no row source configured")
	}
	rows, err := s.source.ReadRowsSince(time.Time{})
	if err != nil {
		return 0, fmt.Errorf("read registration rows: %w", err)
	}

	count := 0
	var newest time.Time
	for _, row := range rows {
		email := strings.ToLower(strings.TrimSpace(row.Email))
		if email == "" {
			continue
		}
		res, err := s.db.Exec(`
			INSERT INTO members (email, first_name, last_name, committees, stage, first_seen, row_ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (email) DO NOTHING
		`, email, row.FirstName, row.LastName, strings.Join(row.Committees, ", "),
			models.StageFullyOnboarded, time.Now().UTC(), row.Timestamp)
		if err != nil {
			return count, fmt.Errorf("seed member %s: %w", email, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			count++
		}
		if row.Timestamp.After(newest) {
			newest = row.Timestamp
		}
	}

	if !newest.IsZero() {
		if err := s.setCursor(newest); err != nil {
			return count, err
		}
	}

	slog.Info("seeded existing members", "count", count)
	return count, nil
}

// ResendSince re-queues welcome sends for members first seen on or after
// the given date. Only fully onboarded (typically seeded) records are
// reset; members mid-pipeline are left where they are. Returns the number
// of members re-queued.
func (s *Service) ResendSince(date time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE members SET stage = $1 WHERE first_seen >= $2 AND stage = $3
	`, models.StageNew, date, models.StageFullyOnboarded)
	if err != nil {
		return 0, fmt.Errorf("reset members since %s: %w", date.Format("2006-01-02"), err)
	}
	n, _ := res.RowsAffected()
	slog.Info("members marked for re-send", "count", n, "since", date.Format("2006-01-02"))
	return int(n), nil
}

// SendWelcomeTo sends one welcome email to an explicit address, outside
// the scheduled pipeline. If the address matches a member record in stage
// "new", the record advances to welcomed.
func (s *Service) SendWelcomeTo(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: %q is not an email address", models.ErrValidation, email)
	}
	if s.mailer == nil {
		return fmt.Errorf("mailer not configured")
	}

	var first, last string
	err := s.db.QueryRow(`
		SELECT COALESCE(first_name, ''), COALESCE(last_name, '') FROM members WHERE email = $1
	`, email).Scan(&first, &last)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query member: %w", err)
	}

	if err := s.mailer.SendWelcome(email, first, last); err != nil {
		return fmt.Errorf("send welcome to %s: %w", email, err)
	}

	// Best effort; the address may not correspond to a member record.
	_, err = s.db.Exec(`
		UPDATE members SET stage = $1 WHERE email = $2 AND stage = $3
	`, models.StageWelcomed, email, models.StageNew)
	if err != nil {
		return fmt.Errorf("mark welcomed: %w", err)
	}

	slog.Info("manual welcome email sent", "email", email)
	return nil
}

// Stats returns the member count per stage.
func (s *Service) Stats() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT stage, COUNT(*) FROM members GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		stats[stage] = n
	}
	return stats, rows.Err()
}

// cursor / advanceCursor implement the resumable read marker. The cursor
// only ever moves forward, and only across rows whose outcome is terminal
// (fully_onboarded or skipped); everything after it is re-read next run
// and deduplicated by row identity, so a crash mid-batch is safe.
func (s *Service) cursor() (time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(`SELECT last_row_ts FROM sync_cursors WHERE source = $1`, cursorSource).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query cursor: %w", err)
	}
	return t, nil
}

func (s *Service) setCursor(t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_cursors (source, last_row_ts) VALUES ($1, $2)
		ON CONFLICT (source) DO UPDATE SET last_row_ts = excluded.last_row_ts
	`, cursorSource, t)
	if err != nil {
		return fmt.Errorf("store cursor: %w", err)
	}
	return nil
}

func (s *Service) advanceCursor(current time.Time, rows []models.Registration) error {
	advanceTo := current
	for _, row := range rows {
		email := strings.ToLower(strings.TrimSpace(row.Email))
		if email == "" {
			advanceTo = row.Timestamp
			continue
		}
		var stage string
		err := s.db.QueryRow(`SELECT stage FROM members WHERE email = $1`, email).Scan(&stage)
		if err != nil {
			return fmt.Errorf("query stage for cursor: %w", err)
		}
		if stage != models.StageFullyOnboarded && stage != models.StageSkipped {
			break
		}
		advanceTo = row.Timestamp
	}

	if advanceTo.After(current) {
		return s.setCursor(advanceTo)
	}
	return nil
}
