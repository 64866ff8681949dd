package artifact

import (
	"encoding/json"
	"errors"
	"fmt"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var (
	ErrNoLayers       = errors.New("artifact: no layers")
	ErrMultipleLayers = errors.New("artifact: more than one layer")
)

// Layer is a content blob tagged with a media type. Its digest is always
// derived from the content.
type Layer struct {
	content     []byte
	mediaType   string
	annotations map[string]string
	digest      digest.Digest
}

// NewLayer wraps content as a layer of the given media type.
func NewLayer(content []byte, mediaType string, annotations map[string]string) Layer {
	return Layer{
		content:     content,
		mediaType:   mediaType,
		annotations: annotations,
		digest:      digest.FromBytes(content),
	}
}

// NewComponentLayer wraps a component binary as the entrypoint layer.
func NewComponentLayer(content []byte) Layer {
	d := digest.FromBytes(content)
	return NewLayer(content, LayerMediaType, map[string]string{
		AnnotationEntrypoint: "true",
		AnnotationTitle:      d.Encoded() + ".wasm",
	})
}

func (l Layer) Digest() digest.Digest { return l.digest }
func (l Layer) MediaType() string     { return l.mediaType }
func (l Layer) Size() int64           { return int64(len(l.content)) }
func (l Layer) Content() []byte       { return l.content }

// Descriptor returns the manifest entry for the layer.
func (l Layer) Descriptor() ocispec.Descriptor {
	return ocispec.Descriptor{
		MediaType:   l.mediaType,
		Digest:      l.digest,
		Size:        l.Size(),
		Annotations: l.annotations,
	}
}

func (l Layer) v1Layer() v1.Layer {
	return static.NewLayer(l.content, types.MediaType(l.mediaType))
}

// BuildConfig returns the serialized platform config for a component whose
// content digest is entrypointDigest. The entrypoint is "/" + entrypointDigest.
func BuildConfig(entrypointDigest string, diffIDs ...digest.Digest) ([]byte, error) {
	if diffIDs == nil {
		diffIDs = []digest.Digest{}
	}
	cfg := ocispec.Image{
		Platform: ocispec.Platform{
			Architecture: Architecture,
			OS:           OS,
		},
		Config: ocispec.ImageConfig{
			Entrypoint: []string{"/" + entrypointDigest},
		},
		RootFS: ocispec.RootFS{
			Type:    "layers",
			DiffIDs: diffIDs,
		},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// BuildManifest returns the serialized image manifest binding config and layers.
// Only single-layer artifacts are supported.
func BuildManifest(config []byte, layers ...Layer) ([]byte, error) {
	switch {
	case len(layers) == 0:
		return nil, ErrNoLayers
	case len(layers) > 1:
		return nil, fmt.Errorf("%w: got %d", ErrMultipleLayers, len(layers))
	}

	descs := make([]ocispec.Descriptor, 0, len(layers))
	for _, l := range layers {
		descs = append(descs, l.Descriptor())
	}

	m := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ManifestMediaType,
		ArtifactType: ArtifactType,
		Config: ocispec.Descriptor{
			MediaType: ConfigMediaType,
			Digest:    digest.FromBytes(config),
			Size:      int64(len(config)),
		},
		Layers: descs,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}
