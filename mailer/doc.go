// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package mailer is the SMTP adapter behind the onboarding and outreach
// email interfaces.
package mailer
