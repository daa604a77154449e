package media

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   []byte
		maxBytes  int64
		wantErr   bool
		errTooBig bool
	}{
		{
			name:     "within limit",
			payload:  []byte("hello"),
			maxBytes: 8,
		},
		{
			name:      "over limit",
			payload:   []byte("0123456789"),
			maxBytes:  5,
			wantErr:   true,
			errTooBig: true,
		},
		{
			name:     "exact limit",
			payload:  []byte("12345"),
			maxBytes: 5,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReadAllWithLimit(bytes.NewReader(tt.payload), tt.maxBytes)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if tt.errTooBig && !errors.Is(err, ErrReadLimitExceeded) {
					t.Fatalf("expected ErrReadLimitExceeded, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != string(tt.payload) {
				t.Fatalf("unexpected payload: %q", string(got))
			}
		})
	}
}

func TestPolicyCheck(t *testing.T) {
	t.Parallel()

	p := Policy{GeneralCeilingBytes: 50, ImageCeilingBytes: 10}
	tests := []struct {
		name    string
		class   Class
		size    int64
		ceiling int64
	}{
		{name: "image at ceiling", class: ClassImage, size: 10},
		{name: "image over ceiling", class: ClassImage, size: 11, ceiling: 10},
		{name: "document over image ceiling", class: ClassDocument, size: 11},
		{name: "video over general ceiling", class: ClassVideo, size: 51, ceiling: 50},
		{name: "audio at general ceiling", class: ClassAudio, size: 50},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := p.Check(tt.class, tt.size)
			if tt.ceiling == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrPayloadTooLarge) {
				t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
			}
			var tooLarge *PayloadTooLargeError
			if !errors.As(err, &tooLarge) || tooLarge.Ceiling != tt.ceiling {
				t.Fatalf("expected ceiling %d, got %+v", tt.ceiling, tooLarge)
			}
		})
	}
}

func TestHumanSize(t *testing.T) {
	t.Parallel()

	if got := HumanSize(512); got != "0.50 KB" {
		t.Fatalf("unexpected size: %s", got)
	}
	if got := HumanSize(15 * 1024 * 1024); got != "15.00 MB" {
		t.Fatalf("unexpected size: %s", got)
	}
}

func TestPayloadTooLargeErrorMessage(t *testing.T) {
	t.Parallel()

	known := &PayloadTooLargeError{Class: ClassImage, Size: 15 * 1024 * 1024, Ceiling: 10 * 1024 * 1024}
	if got := known.Error(); got != "image files must be under 10.00 MB (got 15.00 MB)" {
		t.Fatalf("unexpected message: %s", got)
	}
	unknown := &PayloadTooLargeError{Class: ClassDocument, Ceiling: 50 * 1024 * 1024}
	if got := unknown.Error(); got != "document files must be under 50.00 MB" {
		t.Fatalf("unexpected message: %s", got)
	}
}
