// Package stuffed packages WebAssembly components as OCI artifacts and moves
// them through OCI distribution registries.
//
// A component is pushed as a single-layer image manifest with a custom
// artifactType, a synthetic wasm/wasi config whose entrypoint names the
// component by digest, and one layer holding the raw component bytes. Pulled
// components are written to disk named by their content digest.
//
// Basic usage:
//
//	c, _ := stuffed.NewClient()
//	defer c.Close()
//
//	data, _ := os.ReadFile("hello.wasm")
//	res, _ := c.Push(ctx, "ghcr.io/acme/hello:v1", data, stuffed.Sum(data))
//	fmt.Println(res.Reference)
//
//	path, _ := c.Pull(ctx, "ghcr.io/acme/hello:v1", "./components")
//	// ./components/sha256-<hex>
//
// With WithCacheDir, pushed and pulled components are kept locally and can be
// written out again with Load without contacting the registry.
//
// Local registries without TLS:
//
//	c, _ := stuffed.NewClient(stuffed.WithInsecure(true))
//
// Only anonymous registry access is supported out of the box; any
// authn.Keychain can be supplied with WithCredentials.
package stuffed
