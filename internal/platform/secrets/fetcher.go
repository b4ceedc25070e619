package secrets

import (
	"bufio"
	"context"
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
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/vastra-shop/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager. The
// payment provider keys, courier API tokens, and webhook signing secrets the
// storefront needs at boot all flow through here. Resolved values are cached
// per version; when Secret Manager is unreachable or access is denied, values
// come from a local dotenv-style fallback file so development does not need
// cloud credentials.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger *zap.Logger

	env           string
	defaultProjID string
	projectMap    map[string]string
	versionPins   map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cachedSecret

	resolveDuration metric.Float64Histogram
	cacheHits       metric.Int64Counter
}

type cachedSecret struct {
	value     string
	canonical string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	projectMap   map[string]string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	versionPins  map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment names the deployment environment used to pick a project
// from the project map.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject sets the project consulted when the environment has no
// mapping of its own.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies per-environment Secret Manager project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectMap = copyStringMap(m)
	}
}

// WithFallbackFile overrides the path of the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithMeter injects the OpenTelemetry meter used for resolve metrics.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured client, mainly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options such as credentials files.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithVersionPins pins specific secret versions by canonical reference.
// Pins keyed "env:reference" win over plain reference pins, so staging can
// trail a key rotation that production already took.
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.versionPins = copyStringMap(pins)
	}
}

// NewFetcher builds a Fetcher. When no Secret Manager client can be
// constructed the fetcher still works, serving only fallback file values.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
		projectMap:   map[string]string{},
		versionPins:  map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	resolveDuration, err := meter.Float64Histogram(
		"secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent resolving a secret reference"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: resolve duration metric unavailable", zap.Error(err))
		resolveDuration = nil
	}
	cacheHits, err := meter.Int64Counter(
		"secrets.resolve.cache_hits",
		metric.WithDescription("Secret resolutions served from the in-process cache"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
		cacheHits = nil
	}

	f := &Fetcher{
		logger:          cfg.logger,
		env:             cfg.env,
		defaultProjID:   cfg.defaultProj,
		projectMap:      copyStringMap(cfg.projectMap),
		versionPins:     copyStringMap(cfg.versionPins),
		fallbackPath:    cfg.fallbackPath,
		cache:           make(map[string]cachedSecret),
		resolveDuration: resolveDuration,
		cacheHits:       cacheHits,
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager unavailable, serving fallback file only", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind a secret:// reference. Cached values are
// served without a remote call. Permission and availability errors fall back
// to the local file; a genuinely missing secret surfaces as an error so a
// misconfigured deployment fails at boot rather than at the first webhook.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseSecretRef(ref)
	if err != nil {
		return "", err
	}

	version := f.pinnedVersion(parsed)
	key := versionedKey(parsed.Canonical, version)

	if value, ok := f.cachedValue(key); ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", parsed.Secret)))
		}
		f.recordResolve(ctx, time.Since(start), "cache")
		return value, nil
	}

	projectID := f.projectFor(parsed)
	if projectID != "" && f.client != nil {
		value, fetchErr := f.accessVersion(ctx, projectID, parsed.Secret, version)
		if fetchErr == nil {
			f.storeCache(key, parsed.Canonical, value)
			f.recordResolve(ctx, time.Since(start), "remote")
			return value, nil
		}
		if !fallbackEligible(fetchErr) {
			f.recordResolve(ctx, time.Since(start), "error")
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.Canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local file",
			zap.String("ref", parsed.Canonical), zap.Error(fetchErr))
	}

	value, ok := f.fallbackValue(parsed, version)
	if !ok {
		f.recordResolve(ctx, time.Since(start), "error")
		return "", fmt.Errorf("secrets: fallback value not found for %s", parsed.Canonical)
	}
	f.storeCache(key, parsed.Canonical, value)
	f.recordResolve(ctx, time.Since(start), "fallback")
	return value, nil
}

// Invalidate drops every cached version of a reference. Rotation hooks call
// this so the next Resolve refetches the new value.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseSecretRef(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, entry := range f.cache {
		if entry.canonical == parsed.Canonical {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) cachedValue(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) storeCache(key, canonical, value string) {
	f.mu.Lock()
	f.cache[key] = cachedSecret{
		value:     value,
		canonical: canonical,
		fetchedAt: time.Now(),
	}
	f.mu.Unlock()
}

func (f *Fetcher) accessVersion(ctx context.Context, projectID, secretName, version string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, secretName, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resourceName})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resourceName)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) projectFor(ref secretRef) string {
	if ref.ProjectOverride != "" {
		return ref.ProjectOverride
	}
	if id, ok := f.projectMap[f.env]; ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	return strings.TrimSpace(f.defaultProjID)
}

func (f *Fetcher) pinnedVersion(ref secretRef) string {
	if ref.Version != "" {
		return ref.Version
	}
	if pin, ok := f.versionPins[envScopedKey(f.env, ref.Canonical)]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}
	if pin, ok := f.versionPins[ref.Canonical]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}
	return "latest"
}

func (f *Fetcher) fallbackValue(ref secretRef, version string) (string, bool) {
	f.loadFallbackFile()
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback file unusable", zap.Error(f.fallbackErr))
		return "", false
	}
	if val, ok := f.fallbackVals[versionedKey(ref.Canonical, version)]; ok {
		return val, true
	}
	val, ok := f.fallbackVals[ref.Canonical]
	return val, ok
}

// loadFallbackFile reads the dotenv-style fallback file once. Lines look
// like "secret://razorpay_key_id=value"; blank lines and # comments skip.
func (f *Fetcher) loadFallbackFile() {
	f.fallbackOnce.Do(func() {
		f.fallbackVals = map[string]string{}

		path := strings.TrimSpace(f.fallbackPath)
		if path == "" {
			return
		}
		file, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.fallbackErr = fmt.Errorf("secrets: open fallback file %s: %w", path, err)
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
			refPart, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			refPart = strings.TrimSpace(refPart)
			value = strings.TrimSpace(value)
			if refPart == "" {
				continue
			}
			parsed, err := parseSecretRef(refPart)
			if err != nil {
				f.fallbackVals[refPart] = value
				continue
			}
			version := parsed.Version
			if version == "" {
				version = "latest"
			}
			f.fallbackVals[parsed.Canonical] = value
			f.fallbackVals[versionedKey(parsed.Canonical, version)] = value
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: read fallback file %s: %w", path, err)
		}
	})
}

func (f *Fetcher) recordResolve(ctx context.Context, d time.Duration, source string) {
	if f.resolveDuration == nil {
		return
	}
	f.resolveDuration.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

type secretRef struct {
	Canonical       string
	Secret          string
	Version         string
	ProjectOverride string
}

// parseSecretRef parses "secret://name" with optional ?version= and
// ?project= query overrides. The canonical form strips the query so cache
// entries and version pins key consistently.
func parseSecretRef(ref string) (secretRef, error) {
	if strings.TrimSpace(ref) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()
	return secretRef{
		Canonical:       canonical.String(),
		Secret:          name,
		Version:         strings.TrimSpace(query.Get("version")),
		ProjectOverride: strings.TrimSpace(query.Get("project")),
	}, nil
}

func versionedKey(canonical, version string) string {
	return canonical + "#" + version
}

func envScopedKey(env, canonical string) string {
	if strings.TrimSpace(env) == "" {
		return canonical
	}
	return env + ":" + canonical
}

func copyStringMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

// fallbackEligible reports whether a Secret Manager error should route the
// lookup to the local file instead of failing. NotFound stays an error; a
// secret that does not exist remotely is a configuration bug, not an outage.
func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
