package instance

import "github.com/kentramx/kentramx-sub001/pkg/env"

// GetID returns the process instance identifier used in startup logs.
// Platform-assigned names win over the local default.
func GetID() string {
	return env.First("local", "KENTRA_INSTANCE_ID", "DYNO")
}
