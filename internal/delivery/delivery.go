// Package delivery defines the entry points that expose the application to the outside world.
package delivery

import "context"

// Delivery is a long-running server started by a cmd's fx invoke.
type Delivery interface {
	Serve(ctx context.Context) error
}
