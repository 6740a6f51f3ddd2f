package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who caused the event. System actors (webhooks, cron)
// leave UserID nil and set Source.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Role   string     `json:"role,omitempty"`
	Source string     `json:"source,omitempty"`
}

// UserActor attributes an event to a signed-in caller.
func UserActor(id uuid.UUID, role string) *ActorRef {
	return &ActorRef{UserID: &id, Role: role}
}

// SystemActor attributes an event to a background source such as the
// webhook reconciler or a cron job.
func SystemActor(source string) *ActorRef {
	if source == "" {
		return nil
	}
	return &ActorRef{Source: source}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
