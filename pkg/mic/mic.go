// Package mic mediates acquisition of the microphone capability.
// The session registry must acquire the capability before any session
// leaves the Idle state; this is the only host permission requested.
package mic

import (
	"context"
	"errors"
	"os"
	"strconv"
)

// ErrDenied is returned when the host or user declines audio capture.
var ErrDenied = errors.New("microphone permission denied")

// Gate authorizes audio capture. Acquire is idempotent: repeated calls
// are safe and do not leak acquired capabilities across calls.
type Gate interface {
	Acquire(ctx context.Context) error
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context) error

// Acquire calls f.
func (f GateFunc) Acquire(ctx context.Context) error { return f(ctx) }

// Always returns a gate that grants every request. Useful for headless
// deployments where capture rights are managed outside the process.
func Always() Gate {
	return GateFunc(func(context.Context) error { return nil })
}

// Denied returns a gate that declines every request.
func Denied() Gate {
	return GateFunc(func(context.Context) error { return ErrDenied })
}

// FromEnv returns a gate controlled by the MIC_CAPTURE_ALLOWED
// environment variable. Unset or truthy values grant; anything else
// denies. This stands in for a host permission prompt on platforms
// without one.
func FromEnv() Gate {
	return GateFunc(func(context.Context) error {
		v := os.Getenv("MIC_CAPTURE_ALLOWED")
		if v == "" {
			return nil
		}
		allowed, err := strconv.ParseBool(v)
		if err != nil || !allowed {
			return ErrDenied
		}
		return nil
	})
}
