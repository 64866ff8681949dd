package stuffed

import (
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/go-containerregistry/pkg/authn"

	"github.com/aweris/stuffed/internal/compression"
	"github.com/aweris/stuffed/internal/remote"
)

// Credentials resolves registry credentials. Any authn.Keychain can be used.
type Credentials = authn.Keychain

// Anonymous resolves every registry to anonymous access.
var Anonymous Credentials = remote.Anonymous

// Options configures a Client.
type Options struct {
	Insecure    bool
	Credentials Credentials
	Transport   http.RoundTripper
	Logger      *log.Logger
	CacheDir    string
	Compression bool
}

// Option is a functional option for configuring NewClient.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Credentials: Anonymous,
		Compression: true,
	}
}

// WithInsecure selects plain HTTP instead of HTTPS for every registry.
func WithInsecure(insecure bool) Option {
	return func(o *Options) { o.Insecure = insecure }
}

// WithCredentials sets the credential source. Defaults to Anonymous.
func WithCredentials(c Credentials) Option {
	return func(o *Options) {
		if c != nil {
			o.Credentials = c
		}
	}
}

// WithTransport sets the HTTP round tripper used for registry requests.
func WithTransport(t http.RoundTripper) Option {
	return func(o *Options) { o.Transport = t }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithCacheDir enables the local component cache rooted at dir.
func WithCacheDir(dir string) Option {
	return func(o *Options) { o.CacheDir = dir }
}

// WithCompression toggles zstd compression of cached components.
func WithCompression(enabled bool) Option {
	return func(o *Options) { o.Compression = enabled }
}

func defaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "stuffed",
		Level:  log.WarnLevel,
	})
}

func newCompressor(enabled bool) (*compression.Compressor, error) {
	return compression.NewCompressor(compression.LevelDefault, enabled)
}
