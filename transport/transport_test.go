package transport

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

// fakeNetError satisfies net.Error the way kernel-level timeouts do.
type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return e.timeout }

func TestIsTimeout(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline exceeded", os.ErrDeadlineExceeded, true},
		{"wrapped deadline exceeded", fmt.Errorf("read: %w", os.ErrDeadlineExceeded), true},
		{"net timeout", &fakeNetError{timeout: true}, true},
		{"net error, not timeout", &fakeNetError{timeout: false}, false},
		{"closed", ErrClosed, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTimeout(tc.err); got != tc.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
