// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the MeetPoll background engine.

MeetPoll is a community bot whose long-running work happens here: closing
expired polls, reminding event attendees, onboarding newly registered
members, sending outreach campaigns, and trickling job-feed items into a
channel. The chat surface itself lives in a separate deployment wrapper
that injects the messaging, registration-source and directory clients.

# Starting the Engine

Configuration comes from the environment (a local .env is loaded when
present) or CLI flags:

	DATABASE_URL=./meetpoll.db go run main.go

Or with flags:

	go run main.go -d "postgres://..." -t postgres -welcome both

# Configuration

  - DATABASE_URL (-d): sqlite path or postgres connection string
  - DATABASE_TYPE (-t): sqlite (default) or postgres
  - WELCOME_METHOD (-welcome): email, slack_dm, or both
  - ONBOARD_AFTER_DATE: registrations first seen before this date are skipped
  - ONBOARD_SUPER_ADMIN: user id allowed to manage onboard admins
  - SMTP_HOST/PORT/USER/PASSWORD: outgoing mail; unset disables email
  - NOTIFY_CHANNEL, FEED_CHANNEL: channels for bot-initiated posts
  - OUTREACH_DELAY_SECONDS, OUTREACH_PROGRESS_EVERY: send pacing
  - FEED_SOURCES, FEED_KEYWORDS, FEED_DAILY_CAP,
    FEED_WINDOW_START/END: feed ingestion and publishing

# Architecture

Each concern is a service package owning its tables, wired to the cron
registry in main:

  - schedule: cron registry with overlap skipping and panic recovery
  - polls: poll lifecycle and vote tallies
  - events: RSVP tracking and time-based reminders
  - onboarding: registration sync, welcome pipeline, committee invites
  - outreach: snapshot-based email campaigns with paced, resumable sends
  - feeds: RSS ingestion, keyword filtering, capped daily publishing
  - mailer: SMTP adapter behind the email interfaces
  - models, db, cliparse, testutil: shared types, schema, config, fixtures
*/
package main
