package hudp

import (
	"errors"

	"hudp/reliable"
	"hudp/wire"
)

// Error taxonomy (§7). PayloadTooLarge and Malformed are defined in
// package wire since the codec is what detects them; they are
// re-exported here so callers only need to import the facade package.
var (
	// ErrWrongRole is returned when an operation is invoked against a
	// facade constructed for the other role.
	ErrWrongRole = errors.New("hudp: operation not valid for this role")

	// ErrPayloadTooLarge is a synchronous Send failure: no packet is
	// transmitted and no state changes.
	ErrPayloadTooLarge = wire.ErrPayloadTooLarge

	// ErrWindowFull is a synchronous reliable-Send failure: the window
	// holds W unacknowledged sequences. Callers may retry; this is
	// ordinary back-pressure, not a fault.
	ErrWindowFull = reliable.ErrWindowFull

	// ErrMalformed marks a received datagram that could not be decoded.
	ErrMalformed = wire.ErrMalformed

	// ErrClosed is returned by Receive once the facade has been closed.
	// A reliable Send after Close fails with reliable.ErrClosed instead,
	// and an unreliable Send fails with the socket's write error.
	ErrClosed = errors.New("hudp: facade closed")

	// ErrRemoteAddrRequired is returned by New when role is RoleSender
	// and no remote address was supplied (§4.8).
	ErrRemoteAddrRequired = errors.New("hudp: sender role requires a remote address")
)
