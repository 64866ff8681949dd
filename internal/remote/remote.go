// Package remote implements OCI registry operations for component artifacts.
//
// Based on go-containerregistry:
// - Credentials resolved through an authn.Keychain (anonymous by default)
// - Upload ordering: blobs → manifest, as one remote.Write
// - Layers are fetched lazily, only when their content is read
package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Registry handles OCI registry operations.
type Registry interface {
	// Pull fetches the manifest for ref and returns the layers whose media
	// type is one of mediaTypes, in manifest order. Layer content is not
	// fetched until read.
	Pull(ctx context.Context, ref name.Reference, mediaTypes ...string) (*Artifact, error)

	// Push uploads the config and layer blobs of img, then its manifest.
	Push(ctx context.Context, ref name.Reference, img v1.Image) (v1.Hash, error)

	// Head resolves ref to its manifest descriptor without fetching content.
	Head(ctx context.Context, ref name.Reference) (*v1.Descriptor, error)
}

// Artifact is a pulled manifest filtered down to the accepted layers.
type Artifact struct {
	Digest       v1.Hash
	ArtifactType string
	Layers       []Layer
}

// Layer pairs a manifest descriptor with its (lazily fetched) blob.
type Layer struct {
	Descriptor ocispec.Descriptor
	Blob       v1.Layer
}

// Bytes fetches the layer blob exactly as stored in the registry.
func (l Layer) Bytes() ([]byte, error) {
	rc, err := l.Blob.Compressed()
	if err != nil {
		return nil, classifyPull(fmt.Errorf("fetch layer %s: %w", l.Descriptor.Digest, err))
	}
	data, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, classifyPull(fmt.Errorf("read layer %s: %w", l.Descriptor.Digest, err))
	}
	return data, nil
}
