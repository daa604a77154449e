package media

import (
	"fmt"
	"io"
)

// Policy holds the per-class upload ceilings. The image ceiling must be the
// smaller of the two; Telegram rejects larger photos outright.
type Policy struct {
	GeneralCeilingBytes int64
	ImageCeilingBytes   int64
}

// CeilingFor returns the ceiling that applies to class c.
func (p Policy) CeilingFor(c Class) int64 {
	if c == ClassImage {
		return p.ImageCeilingBytes
	}
	return p.GeneralCeilingBytes
}

// Check returns a *PayloadTooLargeError when size exceeds the class ceiling.
// A payload exactly at the ceiling is accepted.
func (p Policy) Check(c Class, size int64) error {
	ceiling := p.CeilingFor(c)
	if ceiling > 0 && size > ceiling {
		return &PayloadTooLargeError{Class: c, Size: size, Ceiling: ceiling}
	}
	return nil
}

// ReadAllWithLimit reads from reader and rejects payloads larger than maxBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{
		R: reader,
		N: maxBytes + 1,
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrReadLimitExceeded, maxBytes)
	}
	return data, nil
}

// HumanSize formats n bytes as MB with two decimals, the way captions show it.
func HumanSize(n int64) string {
	const mb = 1024 * 1024
	if n < mb {
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%.2f MB", float64(n)/mb)
}
