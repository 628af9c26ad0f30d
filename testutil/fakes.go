// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bogrum/meetpoll-slackbot/models"
)

// FakeMessenger records every outbound message. It satisfies the
// messenger interfaces of the polls, events, onboarding and feeds
// packages and the outreach notifier.
type FakeMessenger struct {
	mu sync.Mutex

	Posts   []Post
	Updates []Post
	DMs     []DM
	Invites []Invite

	// FailDMs makes SendDirectMessage return an error.
	FailDMs bool
	// InviteResults maps channel id to a forced result; unset channels
	// succeed with MembershipOK.
	InviteResults map[string]models.MembershipResult
}

type Post struct {
	Channel string
	TS      string
	Text    string
}

type DM struct {
	UserID string
	Text   string
}

type Invite struct {
	Channel string
	UserID  string
}

func (f *FakeMessenger) PostMessage(channel, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := fmt.Sprintf("%d.%06d", time.Now().Unix(), len(f.Posts))
	f.Posts = append(f.Posts, Post{Channel: channel, TS: ts, Text: text})
	return ts, nil
}

func (f *FakeMessenger) UpdateMessage(channel, ts, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates = append(f.Updates, Post{Channel: channel, TS: ts, Text: text})
	return nil
}

func (f *FakeMessenger) SendDirectMessage(userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDMs {
		return errors.New("fake DM failure")
	}
	f.DMs = append(f.DMs, DM{UserID: userID, Text: text})
	return nil
}

func (f *FakeMessenger) InviteUserToChannel(channelID, userID string) (models.MembershipResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invites = append(f.Invites, Invite{Channel: channelID, UserID: userID})
	if res, ok := f.InviteResults[channelID]; ok {
		return res, nil
	}
	return models.MembershipOK, nil
}

// FakeRowSource serves a fixed slice of registration rows, filtered by
// the cursor the way a real source would.
type FakeRowSource struct {
	Rows []models.Registration
	Err  error
}

func (f *FakeRowSource) ReadRowsSince(cursor time.Time) ([]models.Registration, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Registration
	for _, r := range f.Rows {
		if r.Timestamp.After(cursor) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FakeDirectory records group-add calls and can be told to fail.
type FakeDirectory struct {
	Added  []string
	Fail   bool
	Result models.MembershipResult
}

func (f *FakeDirectory) AddMember(groupEmail, userEmail string) (models.MembershipResult, error) {
	if f.Fail {
		return "", errors.New("fake directory failure")
	}
	f.Added = append(f.Added, userEmail)
	if f.Result != "" {
		return f.Result, nil
	}
	return models.MembershipOK, nil
}

// FakeMailer records sends. FailFor lists addresses whose sends error.
type FakeMailer struct {
	Welcomes []string
	Sent     []Mail
	FailFor  map[string]bool
}

type Mail struct {
	To      string
	Subject string
	Body    string
}

func (f *FakeMailer) SendWelcome(to, firstName, lastName string) error {
	if f.FailFor[to] {
		return errors.New("fake mail failure")
	}
	f.Welcomes = append(f.Welcomes, to)
	return nil
}

func (f *FakeMailer) SendOutreach(to, subject, body string) error {
	if f.FailFor[to] {
		return errors.New("fake mail failure")
	}
	f.Sent = append(f.Sent, Mail{To: to, Subject: subject, Body: body})
	return nil
}

// FakeContactSource serves a fixed contact list per audience.
type FakeContactSource struct {
	ByAudience map[string][]models.Contact
}

func (f *FakeContactSource) Contacts(audience string) ([]models.Contact, error) {
	return f.ByAudience[audience], nil
}

// FakeFetcher serves fixed entries per feed URL.
type FakeFetcher struct {
	ByURL map[string][]models.FeedEntry
	Errs  map[string]error
}

func (f *FakeFetcher) Fetch(url string) ([]models.FeedEntry, error) {
	if err := f.Errs[url]; err != nil {
		return nil, err
	}
	return f.ByURL[url], nil
}
