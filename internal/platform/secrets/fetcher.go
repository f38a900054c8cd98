// Package secrets resolves secret:// references through Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	refPrefix      = "secret://"
	defaultVersion = "latest"
)

// Fetcher resolves secret:// references with in-process caching.
type Fetcher struct {
	client     *secretmanager.Client
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	mu    sync.RWMutex
	cache map[string]string
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClient injects an existing Secret Manager client (the fetcher will not close it).
func WithClient(client *secretmanager.Client) Option {
	return func(f *Fetcher) {
		f.client = client
		f.ownsClient = false
	}
}

// NewFetcher constructs a Fetcher for short secret names scoped to projectID.
func NewFetcher(ctx context.Context, projectID string, opts ...Option) (*Fetcher, error) {
	fetcher := &Fetcher{
		logger:    zap.NewNop(),
		projectID: strings.TrimSpace(projectID),
		cache:     make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(fetcher)
		}
	}

	if fetcher.client == nil {
		client, err := secretmanager.NewClient(ctx, []option.ClientOption{}...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		fetcher.client = client
		fetcher.ownsClient = true
	}
	return fetcher, nil
}

// Resolve fetches the secret value behind a secret:// reference. Accepted
// forms: secret://name, secret://name/versions/N, and
// secret://projects/P/secrets/name[/versions/N].
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	if f == nil || f.client == nil {
		return "", errors.New("secrets: fetcher not initialised")
	}

	name, err := f.canonicalName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	cached, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", redact(name), err)
	}
	value := string(resp.GetPayload().GetData())

	f.mu.Lock()
	f.cache[name] = value
	f.mu.Unlock()

	f.logger.Debug("secret resolved", zap.String("name", redact(name)))
	return value, nil
}

// Close releases the underlying client when owned by the fetcher.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil || !f.ownsClient {
		return nil
	}
	return f.client.Close()
}

func (f *Fetcher) canonicalName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, refPrefix) {
		return "", fmt.Errorf("secrets: reference %q must start with %s", redact(trimmed), refPrefix)
	}
	path := strings.Trim(strings.TrimPrefix(trimmed, refPrefix), "/")
	if path == "" {
		return "", errors.New("secrets: empty reference")
	}

	if strings.HasPrefix(path, "projects/") {
		if !strings.Contains(path, "/versions/") {
			path += "/versions/" + defaultVersion
		}
		return path, nil
	}

	if f.projectID == "" {
		return "", fmt.Errorf("secrets: short reference %q requires a default project", redact(path))
	}

	name, version := path, defaultVersion
	if idx := strings.Index(path, "/versions/"); idx >= 0 {
		name = path[:idx]
		version = strings.Trim(path[idx+len("/versions/"):], "/")
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version), nil
}

func redact(name string) string {
	if len(name) <= 12 {
		return name
	}
	return name[:12] + "..."
}
