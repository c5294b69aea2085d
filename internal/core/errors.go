// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared across packages, wrapped with fmt.Errorf("...: %w").
var (
	// Packet errors, all of them resolve to an Invalid outcome
	ErrPacketTooShort = errors.New("srv6nat: packet too short")
	ErrNotIPv6        = errors.New("srv6nat: not an IPv6 packet")
	ErrNoSRH          = errors.New("srv6nat: no segment routing header")
	ErrNotIPinIP      = errors.New("srv6nat: SRH payload is not IPv4-in-IPv6")
	ErrNoSegmentsLeft = errors.New("srv6nat: no segments left")
	ErrNoPrefixMatch  = errors.New("srv6nat: no prefix match")
	ErrUnknownSegment = errors.New("srv6nat: segment not resolvable")

	// Configuration errors
	ErrParse          = errors.New("srv6nat: parse error")
	ErrConfigInvalid  = errors.New("srv6nat: invalid configuration")
	ErrSIDExists      = errors.New("srv6nat: localsid already exists")
	ErrSIDNotFound    = errors.New("srv6nat: localsid not found")
	ErrTableFull      = errors.New("srv6nat: localsid table full")
	ErrBehaviorExists = errors.New("srv6nat: behavior already registered")
)
