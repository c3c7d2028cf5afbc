// Package safe provides helpers for safe numeric conversions with range checks.
package safe

import (
	"fmt"
	"math"
)

// Uint16 converts a signed 64-bit value to uint16 with range validation.
func Uint16(v int64) (uint16, error) {
	if v < 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("value %d out of uint16 range", v)
	}
	return uint16(v), nil
}

// Uint32 converts a signed 64-bit value to uint32 with range validation.
func Uint32(v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("value %d out of uint32 range", v)
	}
	return uint32(v), nil
}

// Uint64 converts a signed 64-bit value to uint64 while guarding against
// negatives.
func Uint64(v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("value %d out of uint64 range", v)
	}
	return uint64(v), nil
}
