package stuffed

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Sum returns the lowercase hex sha256 digest of p.
func Sum(p []byte) string {
	return digest.FromBytes(p).Encoded()
}

// FileName derives a filesystem-safe name from a digest by replacing every
// ':' with '-' ("sha256:abcd" → "sha256-abcd").
func FileName(d string) string {
	return strings.ReplaceAll(d, ":", "-")
}

// OutputPath returns the path a component with digest d is written to in dir.
func OutputPath(dir, d string) string {
	return filepath.Join(dir, FileName(d))
}

// VerifyDigest returns the hex digest of p. If d is non-empty it must be the
// sha256 of p, either bare hex or "sha256:<hex>".
func VerifyDigest(p []byte, d string) (string, error) {
	actual := digest.FromBytes(p)
	if d == "" {
		return actual.Encoded(), nil
	}

	expected := digest.Digest(d)
	if !strings.Contains(d, ":") {
		expected = digest.NewDigestFromEncoded(digest.SHA256, d)
	}
	if err := expected.Validate(); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidDigest, d, err)
	}
	if expected.Algorithm() != digest.SHA256 {
		return "", fmt.Errorf("%w: %q: only sha256 is supported", ErrInvalidDigest, d)
	}
	if expected != actual {
		return "", fmt.Errorf("%w: got %s, content is %s", ErrDigestMismatch, expected.Encoded(), actual.Encoded())
	}
	return actual.Encoded(), nil
}
