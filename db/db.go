// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open opens the store with the requested driver. dbType is "sqlite"
// (default, pure-Go driver, url is a file path) or "postgres" (url is a
// connection string). All queries in this codebase use $N placeholders,
// which both drivers accept, so the engines never branch on driver.
func Open(dbType, url string) (*sql.DB, error) {
	switch dbType {
	case "", "sqlite":
		dsn := url
		if !strings.Contains(dsn, "?") {
			// Enforce FK cascades; sqlite has them off by default.
			dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
		return sql.Open("sqlite", dsn)
	case "postgres":
		return sql.Open("postgres", url)
	default:
		return nil, fmt.Errorf("unknown database type %q", dbType)
	}
}

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Schema is portable between sqlite and postgres: TEXT ids generated in
// Go, timestamps always bound explicitly, no server-side defaults beyond
// CURRENT_TIMESTAMP.
const Schema = `
-- Polls
CREATE TABLE IF NOT EXISTS polls (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    creator_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    message_ts TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    closes_at TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed'))
);

CREATE INDEX IF NOT EXISTS idx_polls_status ON polls(status);

-- Options
CREATE TABLE IF NOT EXISTS options (
    id TEXT PRIMARY KEY,
    poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    option_text TEXT NOT NULL,
    option_order INTEGER NOT NULL,
    UNIQUE (poll_id, option_order)
);

CREATE INDEX IF NOT EXISTS idx_options_poll ON options(poll_id);

-- Votes: one row per (option, user); a user may hold votes on several
-- options of the same poll, never two on the same option.
CREATE TABLE IF NOT EXISTS votes (
    poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
    option_id TEXT NOT NULL REFERENCES options(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    voted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (option_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_poll ON votes(poll_id);
CREATE INDEX IF NOT EXISTS idx_votes_user ON votes(poll_id, user_id);

-- Events
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    location TEXT,
    starts_at TIMESTAMP NOT NULL,
    max_attendees INTEGER,
    creator_id TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    message_ts TEXT,
    status TEXT NOT NULL DEFAULT 'scheduled'
        CHECK (status IN ('scheduled', 'reminder_24h_sent', 'reminder_1h_sent', 'closed')),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);

-- RSVPs: latest response wins per (event, user).
CREATE TABLE IF NOT EXISTS rsvps (
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    response TEXT NOT NULL CHECK (response IN ('going', 'maybe', 'not_going')),
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (event_id, user_id)
);

-- Onboarding records, keyed by source row identity (email).
CREATE TABLE IF NOT EXISTS members (
    email TEXT PRIMARY KEY,
    first_name TEXT,
    last_name TEXT,
    committees TEXT,
    stage TEXT NOT NULL DEFAULT 'new'
        CHECK (stage IN ('new', 'welcomed', 'group_added', 'fully_onboarded', 'skipped')),
    slack_user_id TEXT,
    first_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    row_ts TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_members_stage ON members(stage);

-- Committee name → channel id
CREATE TABLE IF NOT EXISTS committee_channels (
    committee_name TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL
);

-- Onboard admins (the super admin comes from config, not this table)
CREATE TABLE IF NOT EXISTS onboard_admins (
    user_id TEXT PRIMARY KEY,
    added_by TEXT NOT NULL,
    added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Per-source resumable read marker
CREATE TABLE IF NOT EXISTS sync_cursors (
    source TEXT PRIMARY KEY,
    last_row_ts TIMESTAMP NOT NULL
);

-- Outreach campaigns
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    audience TEXT NOT NULL CHECK (audience IN ('academics', 'clubs')),
    subject TEXT NOT NULL,
    greeting TEXT NOT NULL,
    body TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft'
        CHECK (status IN ('draft', 'previewed', 'sending', 'completed')),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS campaign_recipients (
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    email TEXT NOT NULL,
    first_name TEXT,
    last_name TEXT,
    title TEXT,
    institution TEXT,
    club_name TEXT,
    contact_person TEXT,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'sent', 'failed')),
    sent_at TIMESTAMP,
    PRIMARY KEY (campaign_id, email)
);

CREATE INDEX IF NOT EXISTS idx_recipients_status ON campaign_recipients(campaign_id, status);

-- Feed items, deduped by source GUID for the lifetime of the store.
CREATE TABLE IF NOT EXISTS feed_items (
    guid TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    link TEXT NOT NULL,
    summary TEXT,
    source TEXT NOT NULL,
    discovered_at TIMESTAMP NOT NULL,
    posted_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_feed_items_unposted ON feed_items(discovered_at) WHERE posted_at IS NULL;

-- Posts-per-calendar-day counter, independent of queue size.
CREATE TABLE IF NOT EXISTS post_counter (
    day TEXT PRIMARY KEY,
    count INTEGER NOT NULL DEFAULT 0
);
`
