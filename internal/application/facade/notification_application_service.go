package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/port/inbound"
)

type NotificationApplicationService struct {
	publisher hub.Publisher
	logger    logger.Logger
}

var _ inbound.NotificationUseCase = (*NotificationApplicationService)(nil)

// NewNotificationApplicationService publishes through publisher, which is
// the local broadcaster or the cross-replica relay.
func NewNotificationApplicationService(publisher hub.Publisher, logger logger.Logger) *NotificationApplicationService {
	return &NotificationApplicationService{
		publisher: publisher,
		logger:    logger.WithField("service", "notification"),
	}
}

func (s *NotificationApplicationService) PublishEvent(ctx context.Context, channel string, payload json.RawMessage) error {
	if strings.TrimSpace(channel) == "" {
		return fmt.Errorf("%w: channel cannot be empty", inbound.ErrInvalidEvent)
	}
	if err := hub.ValidatePayload(payload); err != nil {
		return fmt.Errorf("%w: %v", inbound.ErrInvalidEvent, err)
	}

	if err := s.publisher.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("publish on %s: %w", channel, err)
	}
	s.logger.Debugf("Published event on %s", channel)
	return nil
}

// PublishVMEvent builds the event for kind and routes it: creations and
// deletions go to the collection channel, state changes to the VM's own
// channel.
func (s *NotificationApplicationService) PublishVMEvent(ctx context.Context, kind, id string, vm json.RawMessage) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: vm id cannot be empty", inbound.ErrInvalidEvent)
	}
	if kind != hub.EventVMDeleted && (len(vm) == 0 || !json.Valid(vm)) {
		return fmt.Errorf("%w: %s requires a vm object", inbound.ErrInvalidEvent, kind)
	}

	var (
		channel string
		event   hub.Event
	)
	switch kind {
	case hub.EventVMCreated:
		channel, event = hub.CollectionChannel, hub.VMCreated(vm)
	case hub.EventVMDeleted:
		channel, event = hub.CollectionChannel, hub.VMDeleted(id)
	case hub.EventVMStarted:
		channel, event = hub.EntityChannel(id), hub.VMStarted(vm)
	case hub.EventVMStopped:
		channel, event = hub.EntityChannel(id), hub.VMStopped(vm)
	default:
		return fmt.Errorf("%w: unknown vm event kind %q", inbound.ErrInvalidEvent, kind)
	}

	if err := s.publisher.Publish(ctx, channel, event); err != nil {
		return fmt.Errorf("publish %s on %s: %w", kind, channel, err)
	}
	s.logger.WithFields(logger.Fields{"vm_id": id, "channel": channel}).Debugf("Published %s", kind)
	return nil
}
