package pubsub

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"gatekeeper/internal/domain/constants"
	"gatekeeper/internal/domain/service"

	"github.com/pkg/errors"
)

// Message attribute keys.
const (
	AttrEventType  = "event_type"
	AttrIdentityID = "identity_id"
	AttrRequestID  = "request_id"
)

// PubSubPushMessage represents the structure of a Pub/Sub push message
// This mimics the format Google Pub/Sub uses when pushing to HTTP endpoints
type PubSubPushMessage struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// eventAttributes builds the attributes shared by every publisher for filtering and tracing.
func eventAttributes(event *service.IdentityRegisteredEvent) map[string]string {
	attributes := map[string]string{
		AttrEventType:  constants.EventTypeIdentityRegistered,
		AttrIdentityID: event.IdentityID,
	}
	if event.RequestID != "" {
		attributes[AttrRequestID] = event.RequestID
	}

	return attributes
}

// NewPushMessage wraps an event in the push envelope the worker consumes.
func NewPushMessage(event *service.IdentityRegisteredEvent, subscription string, publishedAt time.Time) (*PubSubPushMessage, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	msg := &PubSubPushMessage{Subscription: subscription}
	msg.Message.Data = base64.StdEncoding.EncodeToString(data)
	msg.Message.MessageID = event.EventID
	msg.Message.PublishTime = publishedAt.UTC().Format(time.RFC3339)
	msg.Message.Attributes = eventAttributes(event)

	return msg, nil
}

// DecodeIdentityRegistered extracts the event from a push envelope.
// Messages of another event type are rejected.
func DecodeIdentityRegistered(msg *PubSubPushMessage) (*service.IdentityRegisteredEvent, error) {
	if eventType, ok := msg.Message.Attributes[AttrEventType]; ok && eventType != constants.EventTypeIdentityRegistered {
		return nil, errors.Errorf("unexpected event type %q", eventType)
	}

	data, err := base64.StdEncoding.DecodeString(msg.Message.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode message data")
	}

	var event service.IdentityRegisteredEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event")
	}
	if event.IdentityID == "" {
		return nil, errors.New("event has no identity_id")
	}

	return &event, nil
}
