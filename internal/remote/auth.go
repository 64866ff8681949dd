package remote

import "github.com/google/go-containerregistry/pkg/authn"

// Anonymous is a keychain that resolves every registry to anonymous access.
// Other credential sources (basic, bearer, docker config) plug in as any
// authn.Keychain.
var Anonymous authn.Keychain = anonymousKeychain{}

type anonymousKeychain struct{}

func (anonymousKeychain) Resolve(authn.Resource) (authn.Authenticator, error) {
	return authn.Anonymous, nil
}
