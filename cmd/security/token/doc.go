// Package token provides the opaque-token primitives used by sessiond.
//
// It is the single source of truth for:
//   - generating opaque session tokens,
//   - hashing tokens for server-side storage (HMAC-SHA256 with a configured key,
//     SHA-256 otherwise),
//   - sealing cookie values (HMAC signature or PASETO v4.local),
//   - deriving purpose-bound subkeys from the configured secret (HKDF-SHA256).
//
// Keys are always passed in explicitly; nothing here reads the environment.
package token
