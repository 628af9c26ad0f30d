// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package feeds

import (
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bogrum/meetpoll-slackbot/models"
)

var (
	tagRe = regexp.MustCompile(`<[^>]+>`)
	// WordPress feeds append "The post X appeared first on Y." to every
	// summary; it carries no information.
	trailerRe = regexp.MustCompile(`(?s)The post .* appeared first on .*\.?\s*$`)
)

// RSSFetcher fetches and normalizes RSS/Atom feeds.
type RSSFetcher struct {
	parser *gofeed.Parser
}

func NewRSSFetcher(timeout time.Duration) *RSSFetcher {
	p := gofeed.NewParser()
	p.UserAgent = "meetpoll-slackbot"
	if timeout > 0 {
		p.Client = &http.Client{Timeout: timeout}
	}
	return &RSSFetcher{parser: p}
}

func (f *RSSFetcher) Fetch(url string) ([]models.FeedEntry, error) {
	feed, err := f.parser.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	entries := make([]models.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			continue
		}
		entries = append(entries, models.FeedEntry{
			GUID:    guid,
			Title:   cleanText(item.Title),
			Link:    item.Link,
			Summary: cleanText(item.Description),
		})
	}
	return entries, nil
}

// cleanText strips markup and entity-encodes from feed-supplied HTML.
func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = trailerRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
