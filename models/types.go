// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Poll status constants
const (
	PollStatusOpen   = "open"
	PollStatusClosed = "closed"
)

// Event status constants. Transitions are monotonic:
// scheduled → reminder_24h_sent → reminder_1h_sent → closed.
const (
	EventStatusScheduled   = "scheduled"
	EventStatusReminder24h = "reminder_24h_sent"
	EventStatusReminder1h  = "reminder_1h_sent"
	EventStatusClosed      = "closed"
)

// RSVP response constants
const (
	RSVPGoing    = "going"
	RSVPMaybe    = "maybe"
	RSVPNotGoing = "not_going"
)

// Onboarding stage constants. Stages only ever advance; "skipped" is a
// terminal stage assigned once, when a row is first seen before the
// configured cutoff date.
const (
	StageNew            = "new"
	StageWelcomed       = "welcomed"
	StageGroupAdded     = "group_added"
	StageFullyOnboarded = "fully_onboarded"
	StageSkipped        = "skipped"
)

// Welcome delivery methods
const (
	WelcomeEmail = "email"
	WelcomeDM    = "slack_dm"
	WelcomeBoth  = "both"
)

// Outreach campaign status constants
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusPreviewed = "previewed"
	CampaignStatusSending   = "sending"
	CampaignStatusCompleted = "completed"
)

// Outreach recipient status constants
const (
	RecipientPending = "pending"
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
)

// Outreach audience kinds
const (
	AudienceAcademics = "academics"
	AudienceClubs     = "clubs"
)

// MembershipResult is the outcome of a channel-invite or directory
// group-add call. "already a member" counts as success for onboarding.
type MembershipResult string

const (
	MembershipOK            MembershipResult = "ok"
	MembershipAlreadyMember MembershipResult = "already_member"
)

// Domain types

type Poll struct {
	ID        string
	Question  string
	CreatorID string
	ChannelID string
	MessageTS string
	CreatedAt time.Time
	ClosesAt  *time.Time
	Status    string
}

type Option struct {
	ID     string
	PollID string
	Text   string
	Order  int
}

// OptionResult is one option's tally, used for closed-poll announcements.
type OptionResult struct {
	Option
	VoteCount int
	Voters    []string
}

type Event struct {
	ID           string
	Title        string
	Description  string
	Location     string
	StartsAt     time.Time
	MaxAttendees *int
	CreatorID    string
	ChannelID    string
	MessageTS    string
	Status       string
	CreatedAt    time.Time
}

type RSVPCounts struct {
	Going    int
	Maybe    int
	NotGoing int
}

// Registration is one row from the external registration source, already
// normalized by the source reader.
type Registration struct {
	Email            string
	FirstName        string
	LastName         string
	Country          string
	Education        string
	Affiliations     string
	MembershipChoice string
	Committees       []string
	Timestamp        time.Time
}

// Member is a persisted onboarding record. The email is the idempotency
// key: re-reading the same source row never creates a second record.
type Member struct {
	Email       string
	FirstName   string
	LastName    string
	Committees  []string
	Stage       string
	SlackUserID string
	FirstSeen   time.Time
	RowTime     time.Time
}

type CommitteeMapping struct {
	Committee string
	ChannelID string
}

type Campaign struct {
	ID        string
	Audience  string
	Subject   string
	Greeting  string
	Body      string
	Status    string
	CreatedAt time.Time
}

// Contact is one outreach contact as returned by the contact source.
// Academic contacts fill Title/Institution; club contacts fill
// ClubName/ContactPerson.
type Contact struct {
	Email         string
	FirstName     string
	LastName      string
	Title         string
	Institution   string
	ClubName      string
	ContactPerson string
}

type Recipient struct {
	CampaignID string
	Contact
	Status string
	SentAt *time.Time
}

// FeedEntry is one item as returned by the feed fetcher, before any
// persistence or dedup.
type FeedEntry struct {
	GUID    string
	Title   string
	Link    string
	Summary string
}

type FeedItem struct {
	GUID         string
	Title        string
	Link         string
	Summary      string
	Source       string
	DiscoveredAt time.Time
	PostedAt     *time.Time
}
