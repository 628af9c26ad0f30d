// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package testutil provides shared test fixtures: an in-temp-dir sqlite
// database with the full schema, row builders, and recording fakes for
// every external collaborator.
package testutil
