// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package feeds ingests job and opportunity feeds and trickles the
// relevant items into a channel. Ingestion dedupes on the feed GUID
// forever, publishing claims an item transactionally before posting,
// and a per-day counter caps how many items go out regardless of how
// deep the queue gets.
package feeds
