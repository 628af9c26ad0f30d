// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package onboarding

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bogrum/meetpoll-slackbot/models"
)

// MapCommittee sets or replaces the channel for a committee name.
func (s *Service) MapCommittee(committee, channelID string) error {
	committee = strings.TrimSpace(committee)
	if committee == "" || channelID == "" {
		return fmt.Errorf("%w: committee name and channel are required", models.ErrValidation)
	}
	_, err := s.db.Exec(`
		INSERT INTO committee_channels (committee_name, channel_id) VALUES ($1, $2)
		ON CONFLICT (committee_name) DO UPDATE SET channel_id = excluded.channel_id
	`, committee, channelID)
	if err != nil {
		return fmt.Errorf("map committee: %w", err)
	}
	slog.Info("committee mapped", "committee", committee, "channel", channelID)
	return nil
}

// UnmapCommittee removes a mapping. Reports whether one existed.
func (s *Service) UnmapCommittee(committee string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM committee_channels WHERE committee_name = $1`, strings.TrimSpace(committee))
	if err != nil {
		return false, fmt.Errorf("unmap committee: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Service) Mappings() ([]models.CommitteeMapping, error) {
	rows, err := s.db.Query(`SELECT committee_name, channel_id FROM committee_channels ORDER BY committee_name`)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	var out []models.CommitteeMapping
	for rows.Next() {
		var m models.CommitteeMapping
		if err := rows.Scan(&m.Committee, &m.ChannelID); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// channelFor resolves a committee name against the mappings: exact match
// first, then substring in either direction. Committee names on
// registration forms rarely match the mapped names byte for byte.
func channelFor(committee string, mappings []models.CommitteeMapping) string {
	name := strings.ToLower(strings.TrimSpace(committee))

	for _, m := range mappings {
		if strings.ToLower(m.Committee) == name {
			return m.ChannelID
		}
	}
	for _, m := range mappings {
		mapped := strings.ToLower(m.Committee)
		if strings.Contains(mapped, name) || strings.Contains(name, mapped) {
			return m.ChannelID
		}
	}
	return ""
}

// HandleMemberJoined is the inbound join-event path, invoked by the
// messaging collaborator rather than a scheduled job. It links the user
// to the member record, invites them to their mapped committee channels,
// delivers the DM half of the welcome if configured, and records the
// terminal stage.
func (s *Service) HandleMemberJoined(slackUserID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if slackUserID == "" || email == "" {
		return nil
	}

	var first, committees, stage string
	err := s.db.QueryRow(`
		SELECT COALESCE(first_name, ''), COALESCE(committees, ''), stage FROM members WHERE email = $1
	`, email).Scan(&first, &committees, &stage)
	if err == sql.ErrNoRows {
		slog.Info("joined user not in member records, skipping onboarding", "user", slackUserID, "email", email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("query member: %w", err)
	}
	if stage == models.StageSkipped {
		return nil
	}

	_, err = s.db.Exec(`UPDATE members SET slack_user_id = $1 WHERE email = $2`, slackUserID, email)
	if err != nil {
		return fmt.Errorf("link slack user: %w", err)
	}

	var selected []string
	for _, c := range strings.Split(committees, ",") {
		if c = strings.TrimSpace(c); c != "" {
			selected = append(selected, c)
		}
	}

	if s.messenger != nil {
		s.inviteToCommittees(slackUserID, email, selected)

		if s.cfg.WelcomeMethod == models.WelcomeDM || s.cfg.WelcomeMethod == models.WelcomeBoth {
			name := first
			if name == "" {
				name = "there"
			}
			text := fmt.Sprintf("Welcome, %s! You have been added to your selected committee channels.", name)
			if err := s.messenger.SendDirectMessage(slackUserID, text); err != nil {
				slog.Error("welcome DM failed", "user", slackUserID, "error", err)
			}
		}
	}

	if err := s.markFullyOnboarded(email); err != nil {
		return err
	}

	slog.Info("member onboarded", "user", slackUserID, "email", email)
	return nil
}

// inviteToCommittees invites the user to every mapped committee channel.
// Unmapped committees are logged and skipped, never fatal.
func (s *Service) inviteToCommittees(slackUserID, email string, committees []string) {
	if len(committees) == 0 {
		return
	}
	mappings, err := s.Mappings()
	if err != nil {
		slog.Error("failed to load committee mappings", "error", err)
		return
	}

	for _, committee := range committees {
		channelID := channelFor(committee, mappings)
		if channelID == "" {
			slog.Warn("no channel mapping for committee", "committee", committee, "email", email)
			continue
		}
		res, err := s.messenger.InviteUserToChannel(channelID, slackUserID)
		if err != nil {
			slog.Warn("channel invite failed", "channel", channelID, "user", slackUserID, "error", err)
			continue
		}
		if res == models.MembershipAlreadyMember {
			continue
		}
		slog.Info("invited to committee channel", "channel", channelID, "user", slackUserID, "committee", committee)
	}
}

// markFullyOnboarded jumps any non-terminal stage to fully_onboarded.
// The join event can arrive while the record is still mid-pipeline.
func (s *Service) markFullyOnboarded(email string) error {
	_, err := s.db.Exec(`
		UPDATE members SET stage = $1 WHERE email = $2 AND stage NOT IN ($1, $3)
	`, models.StageFullyOnboarded, email, models.StageSkipped)
	if err != nil {
		return fmt.Errorf("mark fully onboarded: %w", err)
	}
	return nil
}
