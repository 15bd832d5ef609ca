package inbound

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrInvalidEvent marks a publish request the caller must fix.
var ErrInvalidEvent = errors.New("invalid event")

// NotificationUseCase is what broadcast callers are allowed to do.
type NotificationUseCase interface {
	// PublishEvent fans payload out to every subscriber of channel.
	PublishEvent(ctx context.Context, channel string, payload json.RawMessage) error
	// PublishVMEvent announces a VM lifecycle change of the given kind on
	// the channel that kind is routed to.
	PublishVMEvent(ctx context.Context, kind, id string, vm json.RawMessage) error
}
