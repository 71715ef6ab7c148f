package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/eventbus"
)

// Topics derives the bridge topics from a prefix such as "garage/door".
type Topics struct {
	Prefix string
}

// State carries the retained door state ("open" or "closed").
func (t Topics) State() string { return t.Prefix + "/state" }

// Events carries every reconciler event as JSON.
func (t Topics) Events() string { return t.Prefix + "/events" }

// Status carries the retained bridge availability ("online"/"offline").
func (t Topics) Status() string { return t.Prefix + "/status" }

// Command receives target commands.
func (t Topics) Command() string { return t.Prefix + "/target/set" }

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

type eventPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// FormatEvent serializes a bus event for the events topic.
func FormatEvent(e eventbus.Event) ([]byte, error) {
	return json.Marshal(eventPayload{
		ID:        e.ID,
		Type:      string(e.Type),
		Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
		Data:      e.Data,
	})
}

// StateFromEvent extracts the new door state from a state_changed event.
func StateFromEvent(e eventbus.Event) (string, bool) {
	if e.Type != eventbus.EventTypeStateChanged {
		return "", false
	}
	to, ok := e.Data["to"].(string)
	return to, ok && to != ""
}

// ParseCommand parses a command payload: plain "open"/"close" or
// {"target":"open"}. Only Open and Closed are accepted.
func ParseCommand(payload []byte) (door.State, error) {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var cmd struct {
			Target string `json:"target"`
		}
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return 0, fmt.Errorf("%w: malformed JSON payload", door.ErrInvalidCommand)
		}
		raw = cmd.Target
	}

	target, err := door.ParseTarget(raw)
	if err != nil {
		return 0, err
	}
	if !target.IsTarget() {
		return 0, fmt.Errorf("%w: %s is not a target state", door.ErrInvalidCommand, target)
	}
	return target, nil
}
