package media

import (
	"errors"
	"fmt"
)

var (
	// ErrReadLimitExceeded indicates a stream produced more bytes than the reader allowed.
	ErrReadLimitExceeded = errors.New("payload exceeds read limit")
	// ErrPayloadTooLarge indicates a payload violates the configured ceiling for its class.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// PayloadTooLargeError reports which ceiling a payload violated. Size is zero
// when a bounded read stopped before the full length was known.
type PayloadTooLargeError struct {
	Class   Class
	Size    int64
	Ceiling int64
}

func (e *PayloadTooLargeError) Error() string {
	if e.Size <= 0 {
		return fmt.Sprintf("%s files must be under %s", e.Class, HumanSize(e.Ceiling))
	}
	return fmt.Sprintf("%s files must be under %s (got %s)", e.Class, HumanSize(e.Ceiling), HumanSize(e.Size))
}

func (e *PayloadTooLargeError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}
