// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package polls

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bogrum/meetpoll-slackbot/models"
)

const (
	minOptions = 2
	maxOptions = 25
)

// Messenger posts and edits poll announcements. Implementations live in
// the transport layer; a nil Messenger disables announcements only.
type Messenger interface {
	PostMessage(channel, text string) (string, error)
	UpdateMessage(channel, ts, text string) error
}

type Service struct {
	db        *sql.DB
	messenger Messenger
}

func NewService(db *sql.DB, messenger Messenger) *Service {
	return &Service{db: db, messenger: messenger}
}

// Create validates and persists a poll with its ordered options, then
// posts the announcement message and records its handle.
func (s *Service) Create(question, creatorID, channelID string, options []string, closesAt *time.Time) (models.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Poll{}, fmt.Errorf("%w: question is required", models.ErrValidation)
	}

	trimmed := make([]string, 0, len(options))
	seen := make(map[string]bool)
	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if seen[opt] {
			return models.Poll{}, fmt.Errorf("%w: duplicate option %q", models.ErrValidation, opt)
		}
		seen[opt] = true
		trimmed = append(trimmed, opt)
	}
	if len(trimmed) < minOptions || len(trimmed) > maxOptions {
		return models.Poll{}, fmt.Errorf("%w: need between %d and %d options, got %d",
			models.ErrValidation, minOptions, maxOptions, len(trimmed))
	}

	poll := models.Poll{
		ID:        uuid.NewString(),
		Question:  question,
		CreatorID: creatorID,
		ChannelID: channelID,
		CreatedAt: time.Now().UTC(),
		ClosesAt:  closesAt,
		Status:    models.PollStatusOpen,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.Poll{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO polls (id, question, creator_id, channel_id, created_at, closes_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, poll.ID, poll.Question, poll.CreatorID, poll.ChannelID, poll.CreatedAt, poll.ClosesAt, poll.Status)
	if err != nil {
		return models.Poll{}, fmt.Errorf("insert poll: %w", err)
	}

	for i, text := range trimmed {
		_, err = tx.Exec(`
			INSERT INTO options (id, poll_id, option_text, option_order)
			VALUES ($1, $2, $3, $4)
		`, uuid.NewString(), poll.ID, text, i+1)
		if err != nil {
			return models.Poll{}, fmt.Errorf("insert option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Poll{}, fmt.Errorf("commit poll: %w", err)
	}

	slog.Info("poll created", "poll_id", poll.ID, "creator", creatorID, "options", len(trimmed))

	if s.messenger != nil {
		ts, err := s.messenger.PostMessage(channelID, "New poll: "+question)
		if err != nil {
			slog.Error("failed to post poll announcement", "poll_id", poll.ID, "error", err)
		} else if err := s.SetMessageTS(poll.ID, ts); err != nil {
			slog.Error("failed to store poll message handle", "poll_id", poll.ID, "error", err)
		} else {
			poll.MessageTS = ts
		}
	}

	return poll, nil
}

// SetMessageTS records the announcement message handle for later edits.
func (s *Service) SetMessageTS(pollID, ts string) error {
	_, err := s.db.Exec(`UPDATE polls SET message_ts = $1 WHERE id = $2`, ts, pollID)
	return err
}

func (s *Service) Get(pollID string) (models.Poll, error) {
	var p models.Poll
	err := s.db.QueryRow(`
		SELECT id, question, creator_id, channel_id, COALESCE(message_ts, ''), created_at, closes_at, status
		FROM polls WHERE id = $1
	`, pollID).Scan(&p.ID, &p.Question, &p.CreatorID, &p.ChannelID, &p.MessageTS, &p.CreatedAt, &p.ClosesAt, &p.Status)
	if err == sql.ErrNoRows {
		return models.Poll{}, models.ErrNotFound
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("query poll: %w", err)
	}
	return p, nil
}

// Options returns a poll's options in display order.
func (s *Service) Options(pollID string) ([]models.Option, error) {
	rows, err := s.db.Query(`
		SELECT id, poll_id, option_text, option_order
		FROM options WHERE poll_id = $1 ORDER BY option_order
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	var opts []models.Option
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Order); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

// ToggleVote flips exactly one (option, user) pair: present becomes
// absent, absent becomes present. Other options the user voted on stay
// untouched. Returns whether the vote is present afterwards.
func (s *Service) ToggleVote(pollID, userID, optionID string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireOpen(tx, pollID); err != nil {
		return false, err
	}

	var belongs bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM options WHERE id = $1 AND poll_id = $2)
	`, optionID, pollID).Scan(&belongs)
	if err != nil {
		return false, fmt.Errorf("verify option: %w", err)
	}
	if !belongs {
		return false, fmt.Errorf("%w: option %s is not part of poll %s", models.ErrValidation, optionID, pollID)
	}

	res, err := tx.Exec(`
		DELETE FROM votes WHERE option_id = $1 AND user_id = $2
	`, optionID, userID)
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	removed, _ := res.RowsAffected()

	added := false
	if removed == 0 {
		_, err = tx.Exec(`
			INSERT INTO votes (poll_id, option_id, user_id, voted_at)
			VALUES ($1, $2, $3, $4)
		`, pollID, optionID, userID, time.Now().UTC())
		if err != nil {
			return false, fmt.Errorf("insert vote: %w", err)
		}
		added = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit vote: %w", err)
	}
	return added, nil
}

// SetUserVotes replaces the user's full vote set for a poll in one
// transaction, the reconciliation path behind multi-select checkboxes.
func (s *Service) SetUserVotes(pollID, userID string, optionIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireOpen(tx, pollID); err != nil {
		return err
	}

	valid := make(map[string]bool)
	rows, err := tx.Query(`SELECT id FROM options WHERE poll_id = $1`, pollID)
	if err != nil {
		return fmt.Errorf("query options: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan option: %w", err)
		}
		valid[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate options: %w", err)
	}

	for _, id := range optionIDs {
		if !valid[id] {
			return fmt.Errorf("%w: option %s is not part of poll %s", models.ErrValidation, id, pollID)
		}
	}

	_, err = tx.Exec(`DELETE FROM votes WHERE poll_id = $1 AND user_id = $2`, pollID, userID)
	if err != nil {
		return fmt.Errorf("clear votes: %w", err)
	}

	now := time.Now().UTC()
	for _, id := range optionIDs {
		_, err = tx.Exec(`
			INSERT INTO votes (poll_id, option_id, user_id, voted_at)
			VALUES ($1, $2, $3, $4)
		`, pollID, id, userID, now)
		if err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
	}

	return tx.Commit()
}

// UserVotes returns the option ids the user currently holds votes on.
func (s *Service) UserVotes(pollID, userID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT option_id FROM votes WHERE poll_id = $1 AND user_id = $2
	`, pollID, userID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes a poll on behalf of a user. Only the creator may close;
// anyone else is rejected with no state change.
func (s *Service) Close(pollID, byUserID string) error {
	poll, err := s.Get(pollID)
	if err != nil {
		return err
	}
	if poll.CreatorID != byUserID {
		return fmt.Errorf("%w: only the poll creator can close this poll", models.ErrNotAuthorized)
	}
	return s.close(poll)
}

// close transitions open → closed. The WHERE guard makes the transition
// monotonic even under a racing expiry job.
func (s *Service) close(poll models.Poll) error {
	res, err := s.db.Exec(`
		UPDATE polls SET status = $1 WHERE id = $2 AND status = $3
	`, models.PollStatusClosed, poll.ID, models.PollStatusOpen)
	if err != nil {
		return fmt.Errorf("close poll: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrPollClosed
	}

	slog.Info("poll closed", "poll_id", poll.ID)
	s.announceClosed(poll)
	return nil
}

// CloseExpired is the poll-closer job: it closes every open poll whose
// closes_at has passed.
func (s *Service) CloseExpired() error {
	rows, err := s.db.Query(`
		SELECT id, question, creator_id, channel_id, COALESCE(message_ts, ''), created_at, closes_at, status
		FROM polls
		WHERE status = $1 AND closes_at IS NOT NULL AND closes_at <= $2
	`, models.PollStatusOpen, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("query expired polls: %w", err)
	}
	defer rows.Close()

	var expired []models.Poll
	for rows.Next() {
		var p models.Poll
		if err := rows.Scan(&p.ID, &p.Question, &p.CreatorID, &p.ChannelID, &p.MessageTS, &p.CreatedAt, &p.ClosesAt, &p.Status); err != nil {
			return fmt.Errorf("scan poll: %w", err)
		}
		expired = append(expired, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate expired polls: %w", err)
	}

	for _, p := range expired {
		slog.Info("auto-closing expired poll", "poll_id", p.ID)
		if err := s.close(p); err != nil && err != models.ErrPollClosed {
			slog.Error("failed to close expired poll", "poll_id", p.ID, "error", err)
		}
	}
	return nil
}

// Results returns per-option tallies with voter lists, plus the distinct
// voter count.
func (s *Service) Results(pollID string) ([]models.OptionResult, int, error) {
	rows, err := s.db.Query(`
		SELECT o.id, o.poll_id, o.option_text, o.option_order, COUNT(v.user_id)
		FROM options o
		LEFT JOIN votes v ON o.id = v.option_id
		WHERE o.poll_id = $1
		GROUP BY o.id, o.poll_id, o.option_text, o.option_order
		ORDER BY o.option_order
	`, pollID)
	if err != nil {
		return nil, 0, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []models.OptionResult
	for rows.Next() {
		var r models.OptionResult
		if err := rows.Scan(&r.ID, &r.PollID, &r.Text, &r.Order, &r.VoteCount); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate results: %w", err)
	}

	for i := range results {
		voters, err := s.votersFor(results[i].ID)
		if err != nil {
			return nil, 0, err
		}
		results[i].Voters = voters
	}

	var total int
	err = s.db.QueryRow(`
		SELECT COUNT(DISTINCT user_id) FROM votes WHERE poll_id = $1
	`, pollID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count voters: %w", err)
	}

	return results, total, nil
}

func (s *Service) votersFor(optionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM votes WHERE option_id = $1 ORDER BY voted_at`, optionID)
	if err != nil {
		return nil, fmt.Errorf("query voters: %w", err)
	}
	defer rows.Close()

	var voters []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan voter: %w", err)
		}
		voters = append(voters, u)
	}
	return voters, rows.Err()
}

func (s *Service) announceClosed(poll models.Poll) {
	if s.messenger == nil || poll.MessageTS == "" {
		return
	}

	results, total, err := s.Results(poll.ID)
	if err != nil {
		slog.Error("failed to load results for closed poll", "poll_id", poll.ID, "error", err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Poll closed: %s (%d voters)\n", poll.Question, total)
	for _, r := range results {
		fmt.Fprintf(&b, "%d. %s: %d\n", r.Order, r.Text, r.VoteCount)
	}

	if err := s.messenger.UpdateMessage(poll.ChannelID, poll.MessageTS, b.String()); err != nil {
		slog.Error("failed to update closed poll message", "poll_id", poll.ID, "error", err)
	}
}

func requireOpen(tx *sql.Tx, pollID string) error {
	var status string
	err := tx.QueryRow(`SELECT status FROM polls WHERE id = $1`, pollID).Scan(&status)
	if err == sql.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query poll status: %w", err)
	}
	if status != models.PollStatusOpen {
		return models.ErrPollClosed
	}
	return nil
}
