package outbox

import (
	"strings"

	"github.com/google/uuid"
)

// keyNamespace scopes deterministic aggregate ids for outbox rows.
var keyNamespace = uuid.MustParse("5f0c7a52-2d4e-4f5b-9a51-6c1f3e8b2d10")

// DeterministicID derives a stable aggregate id from its parts so that the
// unique (event_type, aggregate_type, aggregate_id) constraint rejects replays
// of the same logical event.
func DeterministicID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(keyNamespace, []byte(strings.Join(parts, ":")))
}
