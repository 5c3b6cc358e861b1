package models

import "time"

type NotificationType string

const (
	NotificationLead         NotificationType = "lead"
	NotificationSubscription NotificationType = "subscription"
	NotificationSystem       NotificationType = "system"
)

type NotificationKind string

const (
	KindLeadAccepted NotificationKind = "lead_accepted"
	KindLeadEnriched NotificationKind = "lead_enriched"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Kind      NotificationKind `json:"kind"`
	LeadID    string           `json:"lead_id,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	Payload   map[string]any   `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
