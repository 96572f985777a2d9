// Package lifecycle holds shared timeouts for process start and stop hooks.
package lifecycle

import "time"

// DefaultTimeout bounds a single start/stop hook (DB ping, server shutdown, publisher close).
const DefaultTimeout = 10 * time.Second

// EventPublishTimeout bounds a detached, best-effort event publish.
const EventPublishTimeout = 5 * time.Second
