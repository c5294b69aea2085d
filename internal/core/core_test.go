package core

import (
	"errors"
	"fmt"
	"testing"
)

// Test sentinel errors
func TestSentinelErrors(t *testing.T) {
	t.Run("ErrorMessages", func(t *testing.T) {
		tests := []struct {
			err     error
			message string
		}{
			{ErrPacketTooShort, "srv6nat: packet too short"},
			{ErrNoSRH, "srv6nat: no segment routing header"},
			{ErrNotIPinIP, "srv6nat: SRH payload is not IPv4-in-IPv6"},
			{ErrNoSegmentsLeft, "srv6nat: no segments left"},
			{ErrNoPrefixMatch, "srv6nat: no prefix match"},
			{ErrParse, "srv6nat: parse error"},
			{ErrSIDExists, "srv6nat: localsid already exists"},
			{ErrSIDNotFound, "srv6nat: localsid not found"},
		}

		for _, tt := range tests {
			if tt.err.Error() != tt.message {
				t.Errorf("expected error message %q, got %q", tt.message, tt.err.Error())
			}
		}
	})

	t.Run("ErrorWrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("localsid fc00::1: %w", ErrSIDExists)
		if !errors.Is(wrapped, ErrSIDExists) {
			t.Error("errors.Is failed for wrapped error")
		}
		if errors.Is(wrapped, ErrSIDNotFound) {
			t.Error("errors.Is matched the wrong sentinel")
		}
	})
}
