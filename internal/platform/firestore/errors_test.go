package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/matcha-bridge/api/internal/platform/config"
)

func TestWrapErrorClassifiesCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.PermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			err := WrapError("rules.get", status.Error(tc.code, "boom"))
			var fsErr *Error
			if !errors.As(err, &fsErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if fsErr.IsNotFound() != tc.notFound || fsErr.IsConflict() != tc.conflict || fsErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %s", tc.code)
			}
		})
	}
}

func TestWrapErrorMapsCancellation(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "cancelled")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestWrapErrorDoesNotDoubleWrap(t *testing.T) {
	first := WrapError("inner", status.Error(codes.NotFound, "missing"))
	second := WrapError("outer", first)
	if second != first {
		t.Fatalf("expected classified error to be returned unchanged")
	}
}

func TestNotFoundHelper(t *testing.T) {
	var fsErr *Error
	if err := NotFound("rfqs.get", "rfq missing"); !errors.As(err, &fsErr) || !fsErr.IsNotFound() {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestProviderClientAfterClose(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{ProjectID: "test-project"})
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
