package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs operation events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))
		if event.Type == interfaces.EventOperationFailed {
			logEvent = logger.Warn().Str("event_type", string(event.Type))
		}

		if payload, ok := event.Payload.(models.OperationEvent); ok {
			logEvent = logEvent.
				Str("session_id", payload.SessionID).
				Str("operation", payload.Operation)
			if payload.ArtifactID != "" {
				logEvent = logEvent.Str("artifact_id", payload.ArtifactID)
			}
			if payload.Failure != nil {
				logEvent = logEvent.Str("failure_kind", payload.Failure.Kind).Str("failure", payload.Failure.Message)
			}
			if payload.DurationMS > 0 {
				logEvent = logEvent.Int64("duration_ms", payload.DurationMS)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// AllEventTypes lists the event types the session controller publishes
var AllEventTypes = []interfaces.EventType{
	interfaces.EventOperationStarted,
	interfaces.EventOperationCompleted,
	interfaces.EventOperationFailed,
	interfaces.EventArtifactCreated,
	interfaces.EventSessionEnded,
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)
	for _, eventType := range AllEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}
	return nil
}
