// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events implements the event lifecycle and RSVP bookkeeping.

Status only moves forward: scheduled → reminder_24h_sent →
reminder_1h_sent → closed. The SendReminders job (every 5 minutes) drives
the two reminder transitions; the ClosePast job (every 10 minutes) closes
anything whose start time has passed, regardless of reminder state.

RSVPs are unique per (event, user) with the latest response winning. The
capacity invariant (count of going never exceeds max_attendees) is
enforced inside the same transaction as the RSVP write.
*/
package events
