package stuffed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/aweris/stuffed/internal/artifact"
	"github.com/aweris/stuffed/internal/remote"
	"github.com/aweris/stuffed/internal/store"
)

// Presence is the result of checking whether a reference exists.
type Presence int

const (
	// PresenceUnknown means the registry could not be asked.
	PresenceUnknown Presence = iota
	PresenceFound
	PresenceNotFound
)

func (p Presence) String() string {
	switch p {
	case PresenceFound:
		return "found"
	case PresenceNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// PushResult describes a pushed component artifact.
type PushResult struct {
	// ManifestURL is the distribution API URL of the pushed manifest.
	ManifestURL string
	// Reference pins the pushed manifest by digest (repo@sha256:...).
	Reference string
	// Digest is the manifest digest.
	Digest string
	// ContentDigest is the digest of the component layer.
	ContentDigest string
}

// Client pushes and pulls WebAssembly components as OCI artifacts.
//
// A Client owns one registry connection. Operations may be issued
// concurrently but their registry round trips are serialized.
type Client struct {
	registry remote.Registry
	store    store.Store
	logger   *log.Logger
	insecure bool

	mu sync.RWMutex
}

// NewClient creates a client. With no options it talks HTTPS with anonymous
// credentials and keeps no local cache.
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = defaultLogger()
	}

	reg := remote.New(
		remote.WithKeychain(options.Credentials),
		remote.WithTransport(options.Transport),
		remote.WithLogger(options.Logger),
	)
	c := newClient(reg, options)

	if options.CacheDir != "" {
		compressor, err := newCompressor(options.Compression)
		if err != nil {
			return nil, fmt.Errorf("create compressor: %w", err)
		}
		s, err := store.NewLocalStore(expandPath(options.CacheDir), store.DefaultCacheSize, compressor)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		c.store = s
	}
	return c, nil
}

func newClient(reg remote.Registry, options *Options) *Client {
	logger := options.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	return &Client{
		registry: reg,
		logger:   logger,
		insecure: options.Insecure,
	}
}

// Pull fetches the component at reference and writes it to outputDir, named
// by its content digest. An existing file with that name is overwritten.
// It returns the path written.
func (c *Client) Pull(ctx context.Context, reference, outputDir string) (string, error) {
	ref, err := c.parseReference("pull", reference)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	layer, data, err := c.fetchComponent(ctx, ref)
	c.mu.Unlock()
	if err != nil {
		return "", &OpError{Op: "pull", Ref: reference, Err: err}
	}

	path := OutputPath(outputDir, layer.Descriptor.Digest.String())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", &OpError{Op: "pull", Ref: reference, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	c.remember(ctx, ref, data)
	c.logger.Info("pulled", "ref", ref, "digest", layer.Descriptor.Digest, "path", path)
	return path, nil
}

func (c *Client) fetchComponent(ctx context.Context, ref name.Reference) (remote.Layer, []byte, error) {
	art, err := c.registry.Pull(ctx, ref, artifact.LayerMediaType)
	if err != nil {
		return remote.Layer{}, nil, err
	}
	if art.ArtifactType != "" && art.ArtifactType != artifact.ArtifactType {
		c.logger.Warn("unexpected artifact type", "ref", ref, "artifactType", art.ArtifactType)
	}

	layer, ok := selectLayer(art.Layers)
	if !ok {
		return remote.Layer{}, nil, fmt.Errorf("%w: no component layer", ErrNotFound)
	}
	if len(art.Layers) > 1 {
		c.logger.Debug("multiple component layers, using one", "ref", ref, "layers", len(art.Layers), "digest", layer.Descriptor.Digest)
	}

	data, err := layer.Bytes()
	if err != nil {
		return remote.Layer{}, nil, err
	}
	return layer, data, nil
}

// selectLayer picks the primary component layer: the one annotated as the
// entrypoint, otherwise the first in manifest order.
func selectLayer(layers []remote.Layer) (remote.Layer, bool) {
	if len(layers) == 0 {
		return remote.Layer{}, false
	}
	for _, l := range layers {
		if l.Descriptor.Annotations[artifact.AnnotationEntrypoint] == "true" {
			return l, true
		}
	}
	return layers[0], true
}

// Push uploads content as a single-layer component artifact at reference.
//
// digest may be empty, bare hex or "sha256:<hex>"; when set it must match
// the sha256 of content.
func (c *Client) Push(ctx context.Context, reference string, content []byte, digest string) (*PushResult, error) {
	ref, err := c.parseReference("push", reference)
	if err != nil {
		return nil, err
	}

	hex, err := VerifyDigest(content, digest)
	if err != nil {
		return nil, &OpError{Op: "push", Ref: reference, Err: err}
	}

	img, err := artifact.NewComponentImage(content)
	if err != nil {
		return nil, &OpError{Op: "push", Ref: reference, Err: err}
	}

	c.logger.Debug("pushing component", "ref", ref, "size", len(content), "digest", hex)

	c.mu.Lock()
	manifestDigest, err := c.registry.Push(ctx, ref, img)
	c.mu.Unlock()
	if err != nil {
		return nil, &OpError{Op: "push", Ref: reference, Err: err}
	}

	c.remember(ctx, ref, content)
	c.logger.Info("pushed", "ref", ref, "digest", manifestDigest)

	return &PushResult{
		ManifestURL:   remote.ManifestURL(ref),
		Reference:     ref.Context().Digest(manifestDigest.String()).String(),
		Digest:        manifestDigest.String(),
		ContentDigest: "sha256:" + hex,
	}, nil
}

// Stat reports whether reference resolves to a manifest. Registry failures
// yield PresenceUnknown together with the cause.
func (c *Client) Stat(ctx context.Context, reference string) (Presence, error) {
	ref, err := c.parseReference("exists", reference)
	if err != nil {
		return PresenceUnknown, err
	}

	c.mu.Lock()
	_, err = c.registry.Head(ctx, ref)
	c.mu.Unlock()

	switch {
	case err == nil:
		return PresenceFound, nil
	case errors.Is(err, ErrNotFound):
		return PresenceNotFound, nil
	default:
		return PresenceUnknown, &OpError{Op: "exists", Ref: reference, Err: err}
	}
}

// Exists reports whether reference resolves to a manifest. Any registry
// failure, including an unreachable registry, reports false; use Stat to
// tell absence from failure. Only a malformed reference returns an error.
func (c *Client) Exists(ctx context.Context, reference string) (bool, error) {
	p, err := c.Stat(ctx, reference)
	if errors.Is(err, ErrInvalidReference) {
		return false, err
	}
	if err != nil {
		c.logger.Debug("exists check failed", "ref", reference, "err", err)
	}
	return p == PresenceFound, nil
}

// Load writes the component last pushed or pulled for reference from the
// local cache to outputDir, named by its content digest, without contacting
// the registry. It returns the path written.
func (c *Client) Load(ctx context.Context, reference, outputDir string) (string, error) {
	ref, err := c.parseReference("load", reference)
	if err != nil {
		return "", err
	}
	if c.store == nil {
		return "", &OpError{Op: "load", Ref: reference, Err: fmt.Errorf("%w: no local cache configured", ErrNotFound)}
	}

	d, err := c.store.GetRef(ref.String())
	if err != nil {
		return "", &OpError{Op: "load", Ref: reference, Err: cacheError(err)}
	}
	data, err := c.store.Get(ctx, d)
	if err != nil {
		return "", &OpError{Op: "load", Ref: reference, Err: cacheError(err)}
	}

	path := OutputPath(outputDir, d)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", &OpError{Op: "load", Ref: reference, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	c.logger.Info("loaded from cache", "ref", ref, "digest", d, "path", path)
	return path, nil
}

func cacheError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// Cached iterates references recorded in the local cache and their component
// digests. It yields nothing when no cache is configured.
func (c *Client) Cached() iter.Seq2[string, string] {
	if c.store == nil {
		return func(func(string, string) bool) {}
	}
	return c.store.Refs()
}

func (c *Client) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *Client) parseReference(op, s string) (name.Reference, error) {
	opts := []name.Option{name.WithDefaultTag("latest")}
	if c.insecure {
		opts = append(opts, name.Insecure)
	}
	ref, err := name.ParseReference(s, opts...)
	if err != nil {
		return nil, &OpError{Op: op, Ref: s, Err: fmt.Errorf("%w: %w", ErrInvalidReference, err)}
	}
	return ref, nil
}

// remember records content in the local cache. Cache failures never fail
// the operation.
func (c *Client) remember(ctx context.Context, ref name.Reference, content []byte) {
	if c.store == nil {
		return
	}
	d, err := c.store.Put(ctx, content)
	if err != nil {
		c.logger.Warn("cache component", "ref", ref, "err", err)
		return
	}
	if err := c.store.PutRef(ref.String(), d); err != nil {
		c.logger.Warn("cache reference", "ref", ref, "err", err)
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
