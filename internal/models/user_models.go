package models

import "time"

type PlanLimits struct {
	MaxSubreddits  int `json:"max_subreddits"`
	MaxLeadsPerDay int `json:"max_leads_per_day"`
}

type BusinessProfile struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Offering       string   `json:"offering"`
	TargetAudience string   `json:"target_audience"`
	Keywords       []string `json:"keywords,omitempty"`
}

// User mirrors the identity provider's record for the fields this pipeline needs.
type User struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	Name            string           `json:"name"`
	PlanID          string           `json:"plan_id"`
	BusinessProfile *BusinessProfile `json:"business_profile,omitempty"`
	DeletedAt       *time.Time       `json:"deleted_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
