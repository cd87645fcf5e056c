package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/matcha-bridge/api/internal/domain"
)

func TestDependencyHealthRepositoryCollectSuccess(t *testing.T) {
	checks := []DependencyCheck{
		{
			Name:     "postgres",
			Critical: true,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(5 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{
			Name:  "pubsub",
			Check: func(context.Context) error { return nil },
		},
	}

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(checks,
		WithDependencyClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			t.Fatalf("expected check %s to be ok, got %s", name, check.Status)
		}
		if check.CheckedAt != now {
			t.Fatalf("expected check %s checkedAt %s, got %s", name, now, check.CheckedAt)
		}
	}
	if report.GeneratedAt != now {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestDependencyHealthRepositoryOptionalFailureDegrades(t *testing.T) {
	expectedErr := errors.New("topic missing")
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "postgres", Critical: true, Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return expectedErr }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected status degraded, got %s", report.Status)
	}
	check := report.Checks["pubsub"]
	if check.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected pubsub degraded, got %s", check.Status)
	}
	if check.Error != expectedErr.Error() {
		t.Fatalf("expected error %q, got %q", expectedErr.Error(), check.Error)
	}
}

func TestDependencyHealthRepositoryCriticalFailureErrors(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Critical: true, Check: func(context.Context) error { return errors.New("unavailable") }},
		{Name: "pubsub", Check: func(context.Context) error { return errors.New("degraded") }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
}

func TestDependencyHealthRepositoryCollectTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "secrets",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(200 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected status error, got %s", report.Status)
	}
	if detail := report.Checks["secrets"].Detail; detail != "timeout" {
		t.Fatalf("expected detail timeout, got %s", detail)
	}
}

func TestNewDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	noop := func(context.Context) error { return nil }
	cases := map[string][]DependencyCheck{
		"empty":     nil,
		"no name":   {{Check: noop}},
		"no func":   {{Name: "postgres"}},
		"duplicate": {{Name: "postgres", Check: noop}, {Name: "postgres", Check: noop}},
	}
	for name, checks := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDependencyHealthRepository(checks); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
