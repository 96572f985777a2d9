package service

import (
	"context"
	"time"
)

// IdentityRegisteredEvent is published after a successful registration
// and consumed by the onboarding worker.
type IdentityRegisteredEvent struct {
	RequestID    string    `json:"request_id,omitempty"` // For distributed tracing
	EventID      string    `json:"event_id"`
	IdentityID   string    `json:"identity_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// EventPublisher defines the interface for publishing events to a message queue
type EventPublisher interface {
	// PublishIdentityRegistered publishes a new-identity event for async processing
	PublishIdentityRegistered(ctx context.Context, event *IdentityRegisteredEvent) error

	// Close releases any resources held by the publisher
	Close() error
}
