// Package physical supplies the opaque byte-oriented transport the
// protocol engine sits on top of (spec.md §1's "physical layer" is out of
// scope for the core, but a runnable demo needs a real one).
package physical

import "io"

// Channel is the byte-stream contract the engine's TxHook/RX upcall pair
// is wired to: Write pushes one encoded frame out, and a caller-supplied
// goroutine reads frames back with ReadFrame and feeds them to Engine.RX.
type Channel interface {
	io.Writer
	io.Closer
	// ReadFrame blocks for the next complete FLAG-delimited frame. It is
	// the caller's job to run this in a loop on its own goroutine.
	ReadFrame() ([]byte, error)
}
