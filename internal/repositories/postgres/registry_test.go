package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/matcha-bridge/api/internal/repositories"
)

func TestWrapErrorClassifiesDriverFailures(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "no rows", err: sql.ErrNoRows, notFound: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, conflict: true},
		{name: "check violation", err: &pq.Error{Code: "23514"}, conflict: true},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, unavailable: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, unavailable: true},
		{name: "bad conn", err: fmt.Errorf("exec: %w", driver.ErrBadConn), unavailable: true},
		{name: "syntax error", err: &pq.Error{Code: "42601"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := wrapError("op", tc.err)
			var repoErr repositories.RepositoryError
			if !errors.As(wrapped, &repoErr) {
				t.Fatalf("expected repository error, got %T", wrapped)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %v: notFound=%v conflict=%v unavailable=%v",
					tc.err, repoErr.IsNotFound(), repoErr.IsConflict(), repoErr.IsUnavailable())
			}
			if !errors.Is(wrapped, tc.err) {
				t.Fatalf("expected wrapped error to unwrap to the driver error")
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if got := wrapError("op", context.Canceled); !errors.Is(got, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", got)
	}
	if wrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestRuleFilterClause(t *testing.T) {
	where, args := ruleFilterClause(repositories.ComplianceRuleFilter{})
	if where != "" || len(args) != 0 {
		t.Fatalf("expected empty clause, got %q %v", where, args)
	}

	where, args = ruleFilterClause(repositories.ComplianceRuleFilter{
		ActiveOnly:         true,
		DestinationCountry: "jp",
		ProductCategory:    "100%_matcha",
	})
	want := " WHERE is_active AND destination_country = $1 AND product_category ILIKE $2"
	if where != want {
		t.Fatalf("unexpected clause %q", where)
	}
	if len(args) != 2 || args[0] != "JP" || args[1] != `%100\%\_matcha%` {
		t.Fatalf("unexpected args %v", args)
	}
}
