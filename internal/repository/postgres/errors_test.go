//go:build !integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"evoloop/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWrapDBErrStoreUnavailable(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", context.DeadlineExceeded},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded)},
		{"cancelled", context.Canceled},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapDBErr("load statistics", tc.err)
			if !errors.Is(err, domain.ErrStoreUnavailable) {
				t.Fatalf("wrapDBErr(%v) = %v, want ErrStoreUnavailable", tc.err, err)
			}
		})
	}
}

func TestWrapDBErrPlainFailure(t *testing.T) {
	plain := errors.New("duplicate key value violates unique constraint")
	err := wrapDBErr("create site", plain)
	if errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("constraint violation misclassified as store unavailable: %v", err)
	}
	if !errors.Is(err, plain) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

var _ net.Error = timeoutErr{}
