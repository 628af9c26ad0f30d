// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package onboarding syncs registration rows into member records and
// walks each member through the welcome pipeline.
//
// The scheduled Run pass reads new registration rows past a persistent
// cursor, ingests them, and drives pending members through the email and
// group-membership steps. The cursor only advances over rows whose
// member record has reached a terminal stage, so a crash mid-batch means
// rows are re-read on the next pass; ingestion dedupes on email, which
// makes the re-read harmless. The workspace-join event is handled out of
// band by HandleMemberJoined, which links the Slack user id, invites the
// member to their mapped committee channels and marks the record fully
// onboarded.
//
// External collaborators (row source, directory, mailer, messenger) are
// small interfaces and may be nil; a missing collaborator downgrades the
// corresponding step to a logged skip rather than an error.
package onboarding
