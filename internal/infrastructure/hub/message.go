package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TypeConnected is the discriminator of the admission acknowledgement.
const TypeConnected = "connected"

var connectedAck = []byte(`{"type":"connected"}`)

// ConnectedAck returns the frame sent once on every admitted connection.
func ConnectedAck() []byte {
	out := make([]byte, len(connectedAck))
	copy(out, connectedAck)
	return out
}

// Channel naming used by the dashboard's broadcast callers. The hub matches
// names literally and does not enforce this.
const CollectionChannel = "vms"

// EntityChannel names the per-VM channel, e.g. "vm:7".
func EntityChannel(id string) string {
	return "vm:" + id
}

// Event kinds emitted by the VM handlers.
const (
	EventVMCreated = "vm_created"
	EventVMDeleted = "vm_deleted"
	EventVMStarted = "vm_started"
	EventVMStopped = "vm_stopped"
)

// Event is an opaque payload with at least a "type" discriminator.
type Event map[string]any

// NewEvent builds an event of the given kind carrying fields.
func NewEvent(kind string, fields map[string]any) Event {
	e := make(Event, len(fields)+1)
	for k, v := range fields {
		e[k] = v
	}
	e["type"] = kind
	return e
}

// Type returns the event discriminator, or "" when missing.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

func VMCreated(vm any) Event { return NewEvent(EventVMCreated, map[string]any{"vm": vm}) }
func VMStarted(vm any) Event { return NewEvent(EventVMStarted, map[string]any{"vm": vm}) }
func VMStopped(vm any) Event { return NewEvent(EventVMStopped, map[string]any{"vm": vm}) }
func VMDeleted(id string) Event {
	return NewEvent(EventVMDeleted, map[string]any{"vmId": id})
}

// ValidatePayload checks that raw is a JSON object with a non-empty string
// "type" field.
func ValidatePayload(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("payload is required")
	}

	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if e == nil {
		return errors.New("payload must be a JSON object")
	}
	if strings.TrimSpace(e.Type()) == "" {
		return errors.New("payload type cannot be empty")
	}
	return nil
}
