// Copyright (c) 2025 MeetPoll contributors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package onboarding

import (
	"fmt"

	"github.com/bogrum/meetpoll-slackbot/models"
)

// Authorize reports whether a user may run onboarding admin commands.
// The configured super admin is always authorized.
func (s *Service) Authorize(userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if userID == s.cfg.SuperAdmin {
		return true, nil
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM onboard_admins WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query admins: %w", err)
	}
	return n > 0, nil
}

// AddAdmin grants admin rights. Only the super admin may mutate the list.
func (s *Service) AddAdmin(actorID, userID string) error {
	if actorID != s.cfg.SuperAdmin {
		return models.ErrNotAuthorized
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	_, err := s.db.Exec(`
		INSERT INTO onboard_admins (user_id, added_by) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, actorID)
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

// RemoveAdmin revokes admin rights. Reports whether the user was an admin.
func (s *Service) RemoveAdmin(actorID, userID string) (bool, error) {
	if actorID != s.cfg.SuperAdmin {
		return false, models.ErrNotAuthorized
	}
	res, err := s.db.Exec(`DELETE FROM onboard_admins WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("remove admin: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Service) Admins() ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM onboard_admins ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
