// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package outreach runs email campaigns against snapshotted contact
// lists. A campaign moves draft → previewed → sending → completed;
// drafting copies the contact list so later source edits never change
// who receives a confirmed campaign. Sends are paced by a rate limiter
// and each recipient's outcome is written before the next send, which
// is what makes a crash mid-campaign resumable without duplicates.
package outreach
