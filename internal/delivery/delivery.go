// Package delivery defines the contract every transport adapter satisfies.
package delivery

import "context"

// Delivery is a transport that serves the application. Implementations block
// in Serve until the transport stops; shutdown runs through the fx lifecycle.
type Delivery interface {
	Serve(ctx context.Context) error
}
