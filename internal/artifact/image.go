package artifact

import (
	"bytes"
	"fmt"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

// image implements v1.Image over pre-serialized manifest and config bytes so
// the pushed manifest is exactly what BuildManifest produced.
type image struct {
	manifest []byte
	config   []byte
	layers   []Layer
}

var _ v1.Image = (*image)(nil)

// NewImage builds the manifest for config and layers and returns an image
// ready to be written to a registry.
func NewImage(config []byte, layers ...Layer) (v1.Image, error) {
	manifest, err := BuildManifest(config, layers...)
	if err != nil {
		return nil, err
	}
	return &image{manifest: manifest, config: config, layers: layers}, nil
}

// NewComponentImage encodes a single component binary as an artifact image.
func NewComponentImage(content []byte) (v1.Image, error) {
	layer := NewComponentLayer(content)
	config, err := BuildConfig(layer.Digest().Encoded(), layer.Digest())
	if err != nil {
		return nil, err
	}
	return NewImage(config, layer)
}

func (i *image) Layers() ([]v1.Layer, error) {
	ls := make([]v1.Layer, 0, len(i.layers))
	for _, l := range i.layers {
		ls = append(ls, l.v1Layer())
	}
	return ls, nil
}

func (i *image) MediaType() (types.MediaType, error) {
	return types.OCIManifestSchema1, nil
}

// Size returns the size of the raw manifest.
func (i *image) Size() (int64, error) {
	return int64(len(i.manifest)), nil
}

func (i *image) ConfigName() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(i.config))
	return h, err
}

func (i *image) ConfigFile() (*v1.ConfigFile, error) {
	return v1.ParseConfigFile(bytes.NewReader(i.config))
}

func (i *image) RawConfigFile() ([]byte, error) {
	return i.config, nil
}

func (i *image) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(i.manifest))
	return h, err
}

func (i *image) Manifest() (*v1.Manifest, error) {
	return v1.ParseManifest(bytes.NewReader(i.manifest))
}

func (i *image) RawManifest() ([]byte, error) {
	return i.manifest, nil
}

func (i *image) LayerByDigest(h v1.Hash) (v1.Layer, error) {
	for _, l := range i.layers {
		if l.Digest().String() == h.String() {
			return l.v1Layer(), nil
		}
	}
	return nil, fmt.Errorf("layer not found: %s", h)
}

// LayerByDiffID matches on digest: layers are stored uncompressed.
func (i *image) LayerByDiffID(h v1.Hash) (v1.Layer, error) {
	return i.LayerByDigest(h)
}
