package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const dsnResource = "projects/matcha-test/secrets/postgres-dsn/versions/latest"

type fakeAccessClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeAccessClient() *fakeAccessClient {
	return &fakeAccessClient{
		values: make(map[string]string),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (c *fakeAccessClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if err := c.errs[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (c *fakeAccessClient) Close() error { return nil }

func (c *fakeAccessClient) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

func TestResolveCachesUntilTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	client.values[dsnResource] = "postgres://remote"
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("matcha-test"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://postgres-dsn")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "postgres://remote" {
			t.Fatalf("expected remote value, got %q", got)
		}
	}
	if calls := client.count(dsnResource); calls != 1 {
		t.Fatalf("expected one remote call, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := fetcher.Resolve(ctx, "sm://postgres-dsn"); err != nil {
		t.Fatalf("Resolve after ttl: %v", err)
	}
	if calls := client.count(dsnResource); calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", calls)
	}

	fetcher.Invalidate("secret://postgres-dsn")
	if _, err := fetcher.Resolve(ctx, "secret://postgres-dsn"); err != nil {
		t.Fatalf("Resolve after invalidate: %v", err)
	}
	if calls := client.count(dsnResource); calls != 3 {
		t.Fatalf("expected refetch after invalidate, got %d calls", calls)
	}
}

func TestResolveHonoursVersionAndProjectOverrides(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	client.values["projects/shared/secrets/postgres-dsn/versions/7"] = "pinned"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("matcha-test"))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://postgres-dsn?version=7&project=shared")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "pinned" {
		t.Fatalf("expected pinned value, got %q", got)
	}
}

func TestResolveFallsBackOnPermissionDenied(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	client.errs[dsnResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("matcha-test"),
		WithFallbackFile(writeFallback(t, "# local\nsecret://postgres-dsn=postgres://local\n")),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://postgres-dsn")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "postgres://local" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestResolveDoesNotFallBackOnNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("matcha-test"),
		WithFallbackFile(writeFallback(t, "secret://postgres-dsn=postgres://local\n")),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	_, err = fetcher.Resolve(ctx, "secret://postgres-dsn")
	if status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("expected not found from secret manager, got %v", err)
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (accessClient, error) {
		t.Fatalf("client must not be created without a project")
		return nil, nil
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	fetcher, err := NewFetcher(ctx, WithFallbackFile(writeFallback(t, "secret://postgres-dsn=latest-local\nsecret://replica-dsn=postgres://replica?sslmode=disable\n")))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://postgres-dsn")
	if err != nil || got != "latest-local" {
		t.Fatalf("expected latest-local, got %q (%v)", got, err)
	}

	got, err = fetcher.Resolve(ctx, "secret://replica-dsn?version=4")
	if err != nil || got != "postgres://replica?sslmode=disable" {
		t.Fatalf("expected replica dsn, got %q (%v)", got, err)
	}

	if _, err := fetcher.Resolve(ctx, "secret://missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestNewFetcherSurvivesClientFailure(t *testing.T) {
	ctx := context.Background()
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (accessClient, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	fetcher, err := NewFetcher(ctx,
		WithProject("matcha-test"),
		WithFallbackFile(writeFallback(t, "secret://postgres-dsn=postgres://local\n")),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://postgres-dsn")
	if err != nil || got != "postgres://local" {
		t.Fatalf("expected fallback value, got %q (%v)", got, err)
	}
}

func TestParseReferenceRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "https://example.com/secret", "secret://"} {
		if _, err := parseReference(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
