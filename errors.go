package stuffed

import (
	"errors"
	"fmt"

	"github.com/aweris/stuffed/internal/artifact"
	"github.com/aweris/stuffed/internal/remote"
)

var (
	ErrInvalidReference = errors.New("stuffed: invalid reference")
	ErrInvalidDigest    = errors.New("stuffed: invalid digest")
	ErrDigestMismatch   = errors.New("stuffed: digest does not match content")
	ErrIO               = errors.New("stuffed: local i/o failure")

	// Registry failures, re-exported from internal/remote.
	ErrNotFound     = remote.ErrNotFound
	ErrTransport    = remote.ErrTransport
	ErrPushRejected = remote.ErrPushRejected

	ErrMultipleLayers = artifact.ErrMultipleLayers
)

// OpError records the operation and reference of a failed client call.
type OpError struct {
	Op  string
	Ref string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
