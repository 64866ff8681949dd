// Package artifact encodes a WebAssembly component as an OCI image artifact.
//
// An artifact is a single-layer OCI image manifest:
//   - the manifest carries a custom artifactType so registries and clients can
//     classify it without reading the content
//   - the config is a synthetic platform descriptor (wasm/wasi) whose entrypoint
//     names the component by digest
//   - the layer is the raw component binary tagged with its own media type
package artifact

import ocispec "github.com/opencontainers/image-spec/specs-go/v1"

const (
	// ArtifactType identifies a component artifact at the manifest level.
	ArtifactType = "application/vnd.bytecodealliance.component.v1+wasm"

	// LayerMediaType identifies the component binary layer. Pull filters on it.
	LayerMediaType = "application/vnd.bytecodealliance.wasm.component.layer.v0+wasm"

	ConfigMediaType   = ocispec.MediaTypeImageConfig
	ManifestMediaType = ocispec.MediaTypeImageManifest

	Architecture = "wasm"
	OS           = "wasi"
)

// Layer annotations.
const (
	// AnnotationEntrypoint marks the layer holding the primary component.
	AnnotationEntrypoint = "dev.stuffed.component.entrypoint"

	AnnotationTitle = ocispec.AnnotationTitle
)
