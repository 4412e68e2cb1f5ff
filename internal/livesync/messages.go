package livesync

import (
	"encoding/json"
	"strings"

	"livetimers/timetracker/internal/timers"
)

const (
	MessageAllTimers    = "all_timers"
	MessageActiveTimers = "active_timers"

	RequestGetTimers = "get_timers"
)

// Snapshot is the only server to client frame.
type Snapshot struct {
	Type   string        `json:"type"`
	Timers []timers.View `json:"timers"`
}

type clientRequest struct {
	Message string `json:"message"`
}

// isRefreshRequest reports whether payload is {"message":"get_timers"}.
// Anything else, including invalid JSON, is not an error.
func isRefreshRequest(payload []byte) bool {
	var req clientRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return false
	}
	return strings.TrimSpace(req.Message) == RequestGetTimers
}
