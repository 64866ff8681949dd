package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const DefaultUserAgent = "stuffed"

// OCIRegistry implements Registry on top of go-containerregistry.
type OCIRegistry struct {
	keychain  authn.Keychain
	transport http.RoundTripper
	userAgent string
	logger    *log.Logger
}

var _ Registry = (*OCIRegistry)(nil)

// Option configures an OCIRegistry.
type Option func(*OCIRegistry)

// WithKeychain sets the credential source. Defaults to Anonymous.
func WithKeychain(kc authn.Keychain) Option {
	return func(r *OCIRegistry) {
		if kc != nil {
			r.keychain = kc
		}
	}
}

// WithTransport sets the underlying HTTP round tripper.
func WithTransport(t http.RoundTripper) Option {
	return func(r *OCIRegistry) { r.transport = t }
}

// WithUserAgent sets the User-Agent sent to registries.
func WithUserAgent(ua string) Option {
	return func(r *OCIRegistry) { r.userAgent = ua }
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *log.Logger) Option {
	return func(r *OCIRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a registry client.
func New(opts ...Option) *OCIRegistry {
	r := &OCIRegistry{
		keychain:  Anonymous,
		userAgent: DefaultUserAgent,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *OCIRegistry) Pull(ctx context.Context, ref name.Reference, mediaTypes ...string) (*Artifact, error) {
	r.logger.Debug("fetching manifest", "ref", ref)

	img, err := remote.Image(ref, r.options(ctx)...)
	if err != nil {
		return nil, classifyPull(fmt.Errorf("fetch manifest: %w", err))
	}

	raw, err := img.RawManifest()
	if err != nil {
		return nil, classifyPull(fmt.Errorf("read manifest: %w", err))
	}

	var m ocispec.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %w", ErrTransport, err)
	}

	digest, err := img.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: manifest digest: %w", ErrTransport, err)
	}

	accepted := make(map[string]bool, len(mediaTypes))
	for _, mt := range mediaTypes {
		accepted[mt] = true
	}

	var layers []Layer
	for _, desc := range m.Layers {
		if !accepted[desc.MediaType] {
			continue
		}
		h, err := v1.NewHash(desc.Digest.String())
		if err != nil {
			return nil, fmt.Errorf("%w: layer digest %q: %w", ErrTransport, desc.Digest, err)
		}
		blob, err := img.LayerByDigest(h)
		if err != nil {
			return nil, classifyPull(fmt.Errorf("layer %s: %w", h, err))
		}
		layers = append(layers, Layer{Descriptor: desc, Blob: blob})
	}

	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layer of type %s", ErrNotFound, strings.Join(mediaTypes, ", "))
	}

	r.logger.Debug("manifest fetched", "ref", ref, "digest", digest, "layers", len(m.Layers), "accepted", len(layers))

	return &Artifact{
		Digest:       digest,
		ArtifactType: m.ArtifactType,
		Layers:       layers,
	}, nil
}

func (r *OCIRegistry) Push(ctx context.Context, ref name.Reference, img v1.Image) (v1.Hash, error) {
	digest, err := img.Digest()
	if err != nil {
		return v1.Hash{}, fmt.Errorf("manifest digest: %w", err)
	}

	r.logger.Debug("pushing artifact", "ref", ref, "digest", digest)

	if err := remote.Write(ref, img, r.options(ctx)...); err != nil {
		return v1.Hash{}, classifyPush(fmt.Errorf("write: %w", err))
	}
	return digest, nil
}

func (r *OCIRegistry) Head(ctx context.Context, ref name.Reference) (*v1.Descriptor, error) {
	desc, err := remote.Head(ref, r.options(ctx)...)
	if err != nil {
		return nil, classifyPull(fmt.Errorf("head: %w", err))
	}
	return desc, nil
}

// options disables retries and uploads one blob at a time, so a push is a
// strict sequence of blob uploads followed by the manifest.
func (r *OCIRegistry) options(ctx context.Context) []remote.Option {
	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(r.keychain),
		remote.WithUserAgent(r.userAgent),
		remote.WithRetryBackoff(remote.Backoff{Steps: 1}),
		remote.WithJobs(1),
	}
	if r.transport != nil {
		opts = append(opts, remote.WithTransport(r.transport))
	}
	return opts
}

// ManifestURL returns the distribution API URL of the manifest for ref.
func ManifestURL(ref name.Reference) string {
	repo := ref.Context()
	return fmt.Sprintf("%s://%s/v2/%s/manifests/%s", repo.Scheme(), repo.RegistryStr(), repo.RepositoryStr(), ref.Identifier())
}
