package stuffed

import (
	"bytes"
	"context"
	"io"
	stdlog "log"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	ggcrremote "github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/stuffed/internal/artifact"
	"github.com/aweris/stuffed/internal/remote"
)

var wasmContent = []byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00, 0x01, 0x02}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// blobCounter records blob GETs served by the wrapped registry.
type blobCounter struct {
	next http.Handler
	mu   sync.Mutex
	gets map[string]int
}

func (b *blobCounter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/blobs/sha256:") {
		b.mu.Lock()
		b.gets[path.Base(r.URL.Path)]++
		b.mu.Unlock()
	}
	b.next.ServeHTTP(w, r)
}

func (b *blobCounter) count(d string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets[d]
}

func newTestRegistry(t *testing.T) (string, *blobCounter) {
	t.Helper()
	counter := &blobCounter{next: registry.New(registry.Logger(stdlog.New(io.Discard, "", 0))), gets: map[string]int{}}
	s := httptest.NewServer(counter)
	t.Cleanup(s.Close)
	return strings.TrimPrefix(s.URL, "http://"), counter
}

// rewriteTransport routes requests for a fake registry host to a test server.
type rewriteTransport struct {
	from, to string
}

func (rt *rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Host == rt.from {
		r = r.Clone(r.Context())
		r.URL.Scheme = "http"
		r.URL.Host = rt.to
		r.Host = rt.to
	}
	return http.DefaultTransport.RoundTrip(r)
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type stubRegistry struct {
	mu    sync.Mutex
	calls map[string]int

	pull func(ctx context.Context, ref name.Reference, mediaTypes ...string) (*remote.Artifact, error)
	push func(ctx context.Context, ref name.Reference, img v1.Image) (v1.Hash, error)
	head func(ctx context.Context, ref name.Reference) (*v1.Descriptor, error)
}

func newStub() *stubRegistry {
	return &stubRegistry{calls: map[string]int{}}
}

func (s *stubRegistry) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *stubRegistry) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubRegistry) total() int {
	return s.count("pull") + s.count("push") + s.count("head")
}

func (s *stubRegistry) Pull(ctx context.Context, ref name.Reference, mediaTypes ...string) (*remote.Artifact, error) {
	s.record("pull")
	return s.pull(ctx, ref, mediaTypes...)
}

func (s *stubRegistry) Push(ctx context.Context, ref name.Reference, img v1.Image) (v1.Hash, error) {
	s.record("push")
	return s.push(ctx, ref, img)
}

func (s *stubRegistry) Head(ctx context.Context, ref name.Reference) (*v1.Descriptor, error) {
	s.record("head")
	return s.head(ctx, ref)
}

func stubLayer(content []byte, annotations map[string]string) remote.Layer {
	return remote.Layer{
		Descriptor: ocispec.Descriptor{
			MediaType:   artifact.LayerMediaType,
			Digest:      digest.FromBytes(content),
			Size:        int64(len(content)),
			Annotations: annotations,
		},
		Blob: static.NewLayer(content, types.MediaType(artifact.LayerMediaType)),
	}
}

func newStubClient(stub *stubRegistry) *Client {
	return newClient(stub, &Options{Logger: quietLogger()})
}

func TestClient_RoundTrip(t *testing.T) {
	host, _ := newTestRegistry(t)
	c := newTestClient(t)
	ctx := context.Background()
	ref := host + "/ns/comp:v1"

	res, err := c.Push(ctx, ref, wasmContent, Sum(wasmContent))
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+Sum(wasmContent), res.ContentDigest)
	assert.True(t, strings.HasPrefix(res.Reference, host+"/ns/comp@sha256:"))
	assert.Equal(t, "http://"+host+"/v2/ns/comp/manifests/v1", res.ManifestURL)

	out := t.TempDir()
	p, err := c.Pull(ctx, ref, out)
	require.NoError(t, err)
	assert.Equal(t, OutputPath(out, "sha256:"+Sum(wasmContent)), p)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, wasmContent, got)
}

func TestClient_Scenario(t *testing.T) {
	host, _ := newTestRegistry(t)
	c := newTestClient(t,
		WithInsecure(true),
		WithTransport(&rewriteTransport{from: "registry.test", to: host}),
	)
	ctx := context.Background()
	b := []byte("\x00asm component bytes")

	res, err := c.Push(ctx, "registry.test/ns/comp:v1", b, Sum(b))
	require.NoError(t, err)
	assert.Contains(t, res.Reference, "registry.test/ns/comp")
	assert.Contains(t, res.ManifestURL, "registry.test")
	assert.Contains(t, res.ManifestURL, "/ns/comp/manifests/v1")

	p, err := c.Pull(ctx, "registry.test/ns/comp:v1", t.TempDir())
	require.NoError(t, err)
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestClient_PullOverwrites(t *testing.T) {
	host, _ := newTestRegistry(t)
	c := newTestClient(t)
	ctx := context.Background()
	ref := host + "/ns/comp:v1"

	_, err := c.Push(ctx, ref, wasmContent, "")
	require.NoError(t, err)

	out := t.TempDir()
	target := OutputPath(out, "sha256:"+Sum(wasmContent))
	require.NoError(t, os.WriteFile(target, []byte("stale and longer than the component"), 0644))

	p, err := c.Pull(ctx, ref, out)
	require.NoError(t, err)
	assert.Equal(t, target, p)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, wasmContent, got)
}

func TestClient_PullFirstLayerOnly(t *testing.T) {
	host, counter := newTestRegistry(t)
	ref, err := name.ParseReference(host + "/ns/multi:v1")
	require.NoError(t, err)

	first := []byte("first component")
	second := []byte("second component")
	img, err := mutate.AppendLayers(empty.Image,
		static.NewLayer(first, types.MediaType(artifact.LayerMediaType)),
		static.NewLayer(second, types.MediaType(artifact.LayerMediaType)),
	)
	require.NoError(t, err)
	img = mutate.MediaType(img, types.OCIManifestSchema1)
	img = mutate.ConfigMediaType(img, types.OCIConfigJSON)
	require.NoError(t, ggcrremote.Write(ref, img))

	c := newTestClient(t)
	p, err := c.Pull(context.Background(), ref.String(), t.TempDir())
	require.NoError(t, err)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Equal(t, "sha256-"+Sum(first), filepath.Base(p))

	assert.Equal(t, 1, counter.count("sha256:"+Sum(first)))
	assert.Equal(t, 0, counter.count("sha256:"+Sum(second)))
	assert.NoFileExists(t, OutputPath(filepath.Dir(p), "sha256:"+Sum(second)))
}

func TestClient_PullPrefersEntrypointLayer(t *testing.T) {
	stub := newStub()
	entry := []byte("entrypoint")
	stub.pull = func(context.Context, name.Reference, ...string) (*remote.Artifact, error) {
		return &remote.Artifact{
			ArtifactType: artifact.ArtifactType,
			Layers: []remote.Layer{
				stubLayer([]byte("dependency"), nil),
				stubLayer(entry, map[string]string{artifact.AnnotationEntrypoint: "true"}),
			},
		}, nil
	}

	p, err := newStubClient(stub).Pull(context.Background(), "registry.test/ns/comp:v1", t.TempDir())
	require.NoError(t, err)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestClient_PullNoLayers(t *testing.T) {
	stub := newStub()
	stub.pull = func(context.Context, name.Reference, ...string) (*remote.Artifact, error) {
		return &remote.Artifact{}, nil
	}

	_, err := newStubClient(stub).Pull(context.Background(), "registry.test/ns/comp:v1", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_PullNotFound(t *testing.T) {
	host, _ := newTestRegistry(t)
	c := newTestClient(t)

	_, err := c.Pull(context.Background(), host+"/ns/missing:v1", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "pull", opErr.Op)
	assert.Equal(t, host+"/ns/missing:v1", opErr.Ref)
	assert.Equal(t, 1, strings.Count(err.Error(), host+"/ns/missing:v1"), err.Error())
}

func TestClient_PullWriteFailure(t *testing.T) {
	stub := newStub()
	stub.pull = func(context.Context, name.Reference, ...string) (*remote.Artifact, error) {
		return &remote.Artifact{Layers: []remote.Layer{stubLayer(wasmContent, nil)}}, nil
	}

	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	_, err := newStubClient(stub).Pull(context.Background(), "registry.test/ns/comp:v1", missing)
	assert.ErrorIs(t, err, ErrIO)
}

func TestClient_InvalidReference(t *testing.T) {
	stub := newStub()
	c := newStubClient(stub)
	ctx := context.Background()
	const bad = "not a valid ref!!"

	_, err := c.Pull(ctx, bad, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.ErrorContains(t, err, bad)

	_, err = c.Push(ctx, bad, wasmContent, Sum(wasmContent))
	assert.ErrorIs(t, err, ErrInvalidReference)

	ok, err := c.Exists(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.False(t, ok)

	p, err := c.Stat(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Equal(t, PresenceUnknown, p)

	assert.Zero(t, stub.total())
}

func TestClient_PushDigestMismatch(t *testing.T) {
	stub := newStub()
	c := newStubClient(stub)

	_, err := c.Push(context.Background(), "registry.test/ns/comp:v1", wasmContent, Sum([]byte("other")))
	assert.ErrorIs(t, err, ErrDigestMismatch)
	assert.Zero(t, stub.total())
}

func TestClient_PushEncodesArtifact(t *testing.T) {
	stub := newStub()
	var pushed v1.Image
	stub.push = func(_ context.Context, _ name.Reference, img v1.Image) (v1.Hash, error) {
		pushed = img
		return img.Digest()
	}

	res, err := newStubClient(stub).Push(context.Background(), "registry.test/ns/comp:v1", wasmContent, "")
	require.NoError(t, err)

	m, err := pushed.Manifest()
	require.NoError(t, err)
	require.Len(t, m.Layers, 1)
	assert.Equal(t, types.MediaType(artifact.LayerMediaType), m.Layers[0].MediaType)
	assert.Equal(t, "sha256:"+Sum(wasmContent), m.Layers[0].Digest.String())

	raw, err := pushed.RawManifest()
	require.NoError(t, err)
	assert.Contains(t, string(raw), artifact.ArtifactType)

	cfg, err := pushed.ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, []string{"/" + Sum(wasmContent)}, cfg.Config.Entrypoint)

	d, err := pushed.Digest()
	require.NoError(t, err)
	assert.Equal(t, d.String(), res.Digest)
	assert.Equal(t, "https://registry.test/v2/ns/comp/manifests/v1", res.ManifestURL)
}

func TestClient_PushRejected(t *testing.T) {
	stub := newStub()
	stub.push = func(context.Context, name.Reference, v1.Image) (v1.Hash, error) {
		return v1.Hash{}, ErrPushRejected
	}

	_, err := newStubClient(stub).Push(context.Background(), "registry.test/ns/comp:v1", wasmContent, "")
	assert.ErrorIs(t, err, ErrPushRejected)
	assert.ErrorContains(t, err, "push registry.test/ns/comp:v1")
}

func TestClient_Exists(t *testing.T) {
	host, _ := newTestRegistry(t)
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Push(ctx, host+"/ns/comp:v1", wasmContent, "")
	require.NoError(t, err)

	ok, err := c.Exists(ctx, host+"/ns/comp:v1")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := c.Stat(ctx, host+"/ns/comp:v1")
	require.NoError(t, err)
	assert.Equal(t, PresenceFound, p)
}

func TestClient_ExistsFalseOnAnyFailure(t *testing.T) {
	host, _ := newTestRegistry(t)

	down := httptest.NewServer(http.NotFoundHandler())
	downHost := strings.TrimPrefix(down.URL, "http://")
	down.Close()

	c := newTestClient(t)
	ctx := context.Background()

	missing, err := c.Exists(ctx, host+"/ns/missing:v1")
	require.NoError(t, err)

	unreachable, err := c.Exists(ctx, downHost+"/ns/comp:v1")
	require.NoError(t, err)

	assert.False(t, missing)
	assert.Equal(t, missing, unreachable)

	p, err := c.Stat(ctx, host+"/ns/missing:v1")
	require.NoError(t, err)
	assert.Equal(t, PresenceNotFound, p)

	p, err = c.Stat(ctx, downHost+"/ns/comp:v1")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, PresenceUnknown, p)
}

func TestClient_SerializesOperations(t *testing.T) {
	stub := newStub()
	entered := make(chan struct{})
	release := make(chan struct{})

	var pullEnd, pushStart time.Time
	stub.pull = func(context.Context, name.Reference, ...string) (*remote.Artifact, error) {
		close(entered)
		<-release
		time.Sleep(20 * time.Millisecond)
		pullEnd = time.Now()
		return &remote.Artifact{Layers: []remote.Layer{stubLayer(wasmContent, nil)}}, nil
	}
	stub.push = func(_ context.Context, _ name.Reference, img v1.Image) (v1.Hash, error) {
		pushStart = time.Now()
		return img.Digest()
	}

	c := newStubClient(stub)
	ctx := context.Background()
	out := t.TempDir()

	var wg sync.WaitGroup
	var pullErr, pushErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, pullErr = c.Pull(ctx, "registry.test/ns/comp:v1", out)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, pushErr = c.Push(ctx, "registry.test/ns/comp:v2", wasmContent, "")
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, stub.count("push"), "push reached the registry while pull was in flight")

	close(release)
	wg.Wait()

	require.NoError(t, pullErr)
	require.NoError(t, pushErr)
	assert.False(t, pushStart.Before(pullEnd), "push started at %v before pull finished at %v", pushStart, pullEnd)
}

func TestClient_Cache(t *testing.T) {
	host, _ := newTestRegistry(t)
	cacheDir := t.TempDir()
	c := newTestClient(t, WithCacheDir(cacheDir))
	ctx := context.Background()

	_, err := c.Push(ctx, host+"/ns/comp:v1", wasmContent, "")
	require.NoError(t, err)
	_, err = c.Pull(ctx, host+"/ns/comp:v1", t.TempDir())
	require.NoError(t, err)

	cached := map[string]string{}
	for ref, d := range c.Cached() {
		cached[ref] = d
	}
	assert.Equal(t, map[string]string{host + "/ns/comp:v1": "sha256:" + Sum(wasmContent)}, cached)

	hex := Sum(wasmContent)
	assert.FileExists(t, filepath.Join(cacheDir, "objects", hex[:2], hex[2:]))
}

func TestClient_LoadOffline(t *testing.T) {
	srv := httptest.NewServer(registry.New(registry.Logger(stdlog.New(io.Discard, "", 0))))
	host := strings.TrimPrefix(srv.URL, "http://")
	cacheDir := t.TempDir()
	ctx := context.Background()
	ref := host + "/ns/comp:v1"
	content := bytes.Repeat([]byte("\x00asm component section "), 64)

	c := newTestClient(t, WithCacheDir(cacheDir))
	_, err := c.Push(ctx, ref, content, "")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	srv.Close()

	hex := Sum(content)
	stored, err := os.ReadFile(filepath.Join(cacheDir, "objects", hex[:2], hex[2:]))
	require.NoError(t, err)
	assert.Less(t, len(stored), len(content))

	fresh := newTestClient(t, WithCacheDir(cacheDir))
	out := t.TempDir()
	p, err := fresh.Load(ctx, ref, out)
	require.NoError(t, err)
	assert.Equal(t, OutputPath(out, "sha256:"+hex), p)

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, os.Remove(filepath.Join(cacheDir, "objects", hex[:2], hex[2:])))
	p, err = fresh.Load(ctx, ref, t.TempDir())
	require.NoError(t, err, "served from memory")
	got, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestClient_LoadMissing(t *testing.T) {
	stub := newStub()
	c := newStubClient(stub)
	ctx := context.Background()

	_, err := c.Load(ctx, "registry.test/ns/comp:v1", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)

	c = newTestClient(t, WithCacheDir(t.TempDir()))
	_, err = c.Load(ctx, "registry.test/ns/comp:v1", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Load(ctx, "not a valid ref!!", t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidReference)

	assert.Zero(t, stub.total())
}

func TestClient_LoadCorrupt(t *testing.T) {
	host, _ := newTestRegistry(t)
	cacheDir := t.TempDir()
	ctx := context.Background()
	ref := host + "/ns/comp:v1"

	c := newTestClient(t, WithCacheDir(cacheDir), WithCompression(false))
	_, err := c.Push(ctx, ref, wasmContent, "")
	require.NoError(t, err)

	hex := Sum(wasmContent)
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "objects", hex[:2], hex[2:]), []byte("\x00tampered"), 0644))

	fresh := newTestClient(t, WithCacheDir(cacheDir), WithCompression(false))
	out := t.TempDir()
	_, err = fresh.Load(ctx, ref, out)
	assert.ErrorIs(t, err, ErrIO)
	assert.NoFileExists(t, OutputPath(out, "sha256:"+hex))
}

func TestClient_NoCache(t *testing.T) {
	c := newStubClient(newStub())
	count := 0
	for range c.Cached() {
		count++
	}
	assert.Zero(t, count)
	assert.NoError(t, c.Close())
}

func TestPresence_String(t *testing.T) {
	assert.Equal(t, "found", PresenceFound.String())
	assert.Equal(t, "not found", PresenceNotFound.String())
	assert.Equal(t, "unknown", PresenceUnknown.String())
}
