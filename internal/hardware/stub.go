//go:build !linux

package hardware

import "errors"

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns an error on non-Linux platforms.
func NewReal() (*Real, error) {
	return nil, errors.New("hardware: not supported on this platform (requires Linux)")
}

// TakeReading is not implemented on non-Linux platforms.
func (h *Real) TakeReading(ch Channel) (float64, error) {
	return 0, errors.New("hardware: not supported")
}

// Set is not implemented on non-Linux platforms.
func (h *Real) Set(a Actuator, energized bool) {}

// AllOff is not implemented on non-Linux platforms.
func (h *Real) AllOff() {}

// Close is not implemented on non-Linux platforms.
func (h *Real) Close() error { return nil }
