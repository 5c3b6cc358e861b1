// Package identity mirrors users from the external identity provider. The core
// depends only on a stable user id; these events keep the mirror current.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEvent marks an event that can never be applied.
var ErrMalformedEvent = errors.New("malformed identity event")

type EventType string

const (
	EventUpserted EventType = "identity.upserted"
	EventDeleted  EventType = "identity.deleted"
)

// Envelope is the wire form of an identity event.
type Envelope struct {
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type Upserted struct {
	UserID              string `json:"user_id" validate:"required"`
	Email               string `json:"email" validate:"omitempty,email"`
	Name                string `json:"name"`
	PlanID              string `json:"plan_id"`
	BusinessDescription string `json:"business_description,omitempty"`
}

type Deleted struct {
	UserID string `json:"user_id" validate:"required"`
}

// Handler applies identity events.
type Handler interface {
	IdentityUpserted(ctx context.Context, e Upserted) error
	IdentityDeleted(ctx context.Context, e Deleted, at time.Time) error
}

// Dispatch decodes raw and routes it to h.
func Dispatch(ctx context.Context, h Handler, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	switch env.Type {
	case EventUpserted:
		var e Upserted
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		return h.IdentityUpserted(ctx, e)
	case EventDeleted:
		var e Deleted
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		at := env.OccurredAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		return h.IdentityDeleted(ctx, e, at)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, env.Type)
	}
}
