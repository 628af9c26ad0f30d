// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feeds

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bogrum/meetpoll-slackbot/models"
)

// summaryLimit caps the summary bytes included in a channel post.
const summaryLimit = 500

// Fetcher retrieves the current entries of one feed URL.
type Fetcher interface {
	Fetch(url string) ([]models.FeedEntry, error)
}

// Messenger posts feed items to the announcement channel.
type Messenger interface {
	PostMessage(channelID, text string) (string, error)
}

type Config struct {
	Sources  []string
	Keywords []string // lowercase match against title and summary; empty accepts all
	Channel  string
	DailyCap int // posts per calendar day; <=0 means unlimited
}

type Service struct {
	db        *sql.DB
	fetcher   Fetcher
	messenger Messenger
	cfg       Config
}

func NewService(db *sql.DB, fetcher Fetcher, messenger Messenger, cfg Config) *Service {
	return &Service{db: db, fetcher: fetcher, messenger: messenger, cfg: cfg}
}

// Refresh pulls every configured source, keeps keyword-relevant entries
// and stores the ones whose GUID has never been seen. A source that
// fails is logged and skipped; the others still refresh. Returns the
// number of newly queued items.
func (s *Service) Refresh() (int, error) {
	if s.fetcher == nil {
		slog.Warn("no feed fetcher configured, skipping refresh")
		return 0, nil
	}

	queued := 0
	for _, url := range s.cfg.Sources {
		entries, err := s.fetcher.Fetch(url)
		if err != nil {
			slog.Error("feed fetch failed", "source", url, "error", err)
			continue
		}

		for _, e := range entries {
			if e.GUID == "" || !s.relevant(e) {
				continue
			}
			res, err := s.db.Exec(`
				INSERT INTO feed_items (guid, title, link, summary, source, discovered_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (guid) DO NOTHING
			`, e.GUID, e.Title, e.Link, e.Summary, url, time.Now().UTC())
			if err != nil {
				return queued, fmt.Errorf("insert feed item: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				queued++
			}
		}
	}

	if queued > 0 {
		slog.Info("feed refresh queued new items", "count", queued)
	}
	return queued, nil
}

// PublishNext posts the oldest unposted item, if today's cap allows.
// The item is claimed in a transaction before the post goes out, so a
// GUID is announced at most once even if the post itself fails.
func (s *Service) PublishNext() error {
	if s.messenger == nil || s.cfg.Channel == "" {
		slog.Warn("no feed channel configured, skipping publish")
		return nil
	}

	day := time.Now().UTC().Format("2006-01-02")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.cfg.DailyCap > 0 {
		var posted int
		err = tx.QueryRow(`SELECT COALESCE(count, 0) FROM post_counter WHERE day = $1`, day).Scan(&posted)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("query post counter: %w", err)
		}
		if posted >= s.cfg.DailyCap {
			return nil
		}
	}

	var item models.FeedItem
	err = tx.QueryRow(`
		SELECT guid, title, link, COALESCE(summary, ''), source
		FROM feed_items WHERE posted_at IS NULL
		ORDER BY discovered_at, guid LIMIT 1
	`).Scan(&item.GUID, &item.Title, &item.Link, &item.Summary, &item.Source)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query next item: %w", err)
	}

	_, err = tx.Exec(`UPDATE feed_items SET posted_at = $1 WHERE guid = $2`, time.Now().UTC(), item.GUID)
	if err != nil {
		return fmt.Errorf("claim feed item: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO post_counter (day, count) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET count = post_counter.count + 1
	`, day)
	if err != nil {
		return fmt.Errorf("bump post counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	if _, err := s.messenger.PostMessage(s.cfg.Channel, formatItem(item)); err != nil {
		// The claim already committed; the item will not be retried.
		slog.Error("feed post failed", "guid", item.GUID, "error", err)
		return nil
	}
	slog.Info("feed item posted", "guid", item.GUID, "title", item.Title)
	return nil
}

// QueueDepth counts items waiting to be posted.
func (s *Service) QueueDepth() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM feed_items WHERE posted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query queue depth: %w", err)
	}
	return n, nil
}

func (s *Service) relevant(e models.FeedEntry) bool {
	if len(s.cfg.Keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(e.Title + " " + e.Summary)
	for _, kw := range s.cfg.Keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func formatItem(item models.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", item.Title)
	if item.Summary != "" {
		summary := item.Summary
		if len(summary) > summaryLimit {
			cut := summaryLimit
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			for cut > 0 && !utf8.RuneStart(summary[cut]) {
				cut--
			}
			summary = summary[:cut] + "…"
		}
		b.WriteString(summary)
		b.WriteString("\n")
	}
	b.WriteString(item.Link)
	return b.String()
}
