// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse parses bot configuration from CLI flags with environment
variable fallback. main loads a .env file (via godotenv) before calling
ParseFlags, so every setting can live in either place.

Only the database settings and welcome method are exposed as flags; the
rest are env-only, matching the deploy story (a .env next to the binary).
Optional integrations (SMTP, directory group, notification channels)
default to empty, and the engines degrade gracefully when they are unset.
*/
package cliparse
