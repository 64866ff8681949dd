package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

var (
	ErrNotFound     = errors.New("stuffed: not found")
	ErrTransport    = errors.New("stuffed: transport failure")
	ErrPushRejected = errors.New("stuffed: push rejected")
)

func isNotFound(terr *transport.Error) bool {
	if terr.StatusCode == http.StatusNotFound {
		return true
	}
	for _, d := range terr.Errors {
		switch d.Code {
		case transport.ManifestUnknownErrorCode, transport.NameUnknownErrorCode, transport.BlobUnknownErrorCode:
			return true
		}
	}
	return false
}

// classifyPull maps a read-side failure to ErrNotFound or ErrTransport.
func classifyPull(err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) && isNotFound(terr) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// classifyPush maps a registry declining content to ErrPushRejected. Server
// failures, auth challenges and everything else are ErrTransport.
func classifyPush(err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) && terr.StatusCode < http.StatusInternalServerError && terr.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrPushRejected, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
