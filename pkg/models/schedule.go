package models

import "time"

// Schedule is a cron-style trigger registration for a published definition.
// The schedule trigger polls due schedules and starts executions through the
// same entry point manual and webhook triggers use.
type Schedule struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id" validate:"required"`
	CronExpr     string         `json:"cron_expr"     validate:"required"`
	TriggerInput map[string]any `json:"trigger_input,omitempty"`
	OwnerID      string         `json:"owner_id"`
	Enabled      bool           `json:"enabled"`
	NextFireAt   time.Time      `json:"next_fire_at"`
	LastFiredAt  *time.Time     `json:"last_fired_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
