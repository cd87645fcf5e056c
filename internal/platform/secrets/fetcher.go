// Package secrets resolves secret:// configuration references through Google Secret Manager.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	latestVersion       = "latest"
	meterName           = "github.com/matcha-bridge/api/internal/platform/secrets"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the fallback file hold the reference.
var ErrSecretNotFound = errors.New("secrets: secret not found")

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references with a TTL cache. When Secret Manager is unreachable or the
// caller lacks permission, values are read from a local KEY=VALUE fallback file.
type Fetcher struct {
	client     accessClient
	ownsClient bool
	callOpts   []gax.CallOption
	logger     *zap.Logger
	project    string
	ttl        time.Duration
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]cachedSecret

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cachedSecret struct {
	value   string
	expires time.Time
}

type settings struct {
	logger       *zap.Logger
	project      string
	fallbackPath string
	ttl          time.Duration
	meter        metric.Meter
	client       accessClient
	clientOpts   []option.ClientOption
	clock        func() time.Time
}

// Option customises a Fetcher.
type Option func(*settings)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback path. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(s *settings) { s.fallbackPath = strings.TrimSpace(path) }
}

// WithCacheTTL sets how long resolved values are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) { s.ttl = ttl }
}

// WithMeter injects the OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithClock overrides the cache clock.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) { s.clock = clock }
}

// WithSecretManagerClient injects an existing client. The Fetcher does not close it.
func WithSecretManagerClient(client accessClient) Option {
	return func(s *settings) { s.client = client }
}

// WithClientOptions are passed to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. A client that cannot be created leaves the fetcher in fallback-only mode.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := settings{
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		ttl:          defaultCacheTTL,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		logger:       cfg.logger,
		project:      cfg.project,
		ttl:          cfg.ttl,
		now:          cfg.clock,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cachedSecret),
		callOpts: []gax.CallOption{
			gax.WithRetry(func() gax.Retryer {
				return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
					Initial:    100 * time.Millisecond,
					Max:        2 * time.Second,
					Multiplier: 2,
				})
			}),
		},
	}

	var err error
	if f.latency, err = meter.Float64Histogram("secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of secret resolution by source"),
	); err != nil {
		cfg.logger.Warn("secrets: latency instrument unavailable", zap.Error(err))
	}
	if f.cacheHits, err = meter.Int64Counter("secrets.resolve.cache_hits",
		metric.WithDescription("Secret resolutions served from cache"),
	); err != nil {
		cfg.logger.Warn("secrets: cache hit instrument unavailable", zap.Error(err))
	}

	switch {
	case cfg.client != nil:
		f.client = cfg.client
	case cfg.project != "":
		client, err := newSecretManagerClient(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind ref, e.g. secret://postgres-dsn?version=3&project=other.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := f.cached(parsed.key()); ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", redact(parsed.name))))
		}
		f.observe(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = f.project
	}
	if f.client != nil && project != "" {
		value, err := f.access(ctx, project, parsed)
		if err == nil {
			f.store(parsed.key(), value)
			f.observe(ctx, start, "remote")
			return value, nil
		}
		if !fallbackEligible(err) {
			f.observe(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", parsed.name, err)
		}
		f.logger.Debug("secrets: remote access failed, trying fallback file",
			zap.String("secret", redact(parsed.name)), zap.Error(err))
	}

	value, ok := f.fromFallback(parsed)
	if !ok {
		f.observe(ctx, start, "error")
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, parsed.name)
	}
	f.store(parsed.key(), value)
	f.observe(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, parsed.name+"@") {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) access(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.secretID(), ref.version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name}, f.callOpts...)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if f.ttl > 0 && !f.now().Before(entry.expires) {
		delete(f.cache, key)
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = cachedSecret{value: value, expires: f.now().Add(f.ttl)}
	f.mu.Unlock()
}

// fromFallback looks up "secret://name=value" lines. Versions are ignored locally.
func (f *Fetcher) fromFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)
	value, ok := f.fallback[ref.name]
	return value, ok
}

func (f *Fetcher) loadFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	file, err := os.Open(f.fallbackPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("secrets: fallback file unreadable", zap.String("path", f.fallbackPath), zap.Error(err))
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		parsed, err := parseReference(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		f.fallback[parsed.name] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn("secrets: fallback file parse failed", zap.String("path", f.fallbackPath), zap.Error(err))
	}
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

type reference struct {
	name    string
	version string
	project string
}

func (r reference) key() string { return r.name + "@" + r.version }

// secretID is the bare Secret Manager secret id.
func (r reference) secretID() string { return strings.TrimPrefix(r.name, "secret://") }

func parseReference(raw string) (reference, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference: %w", err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported reference scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, errors.New("secrets: reference has no secret name")
	}
	ref := reference{
		name:    "secret://" + name,
		version: latestVersion,
		project: strings.TrimSpace(u.Query().Get("project")),
	}
	if version := strings.TrimSpace(u.Query().Get("version")); version != "" {
		ref.version = version
	}
	return ref, nil
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

func redact(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:6])
}
