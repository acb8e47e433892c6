// Package session implements sessiond's cookie session lifecycle.
//
// A request carries a sealed session-token cookie (and optionally a sealed
// "don't remember me" marker). Resolve validates the token against the store,
// deletes expired rows eagerly, and extends live sessions with a throttled
// sliding window: the row is only written once UpdateAge has passed since the
// session was last reset to its full MaxAge lifetime. Sessions issued with the marker are never
// extended.
//
// Race safety relies on the store: UpdateExpiry reports Gone when the row was
// deleted concurrently, which Resolve treats exactly like expiry. There are no
// in-process locks around session state.
//
// Revocation (one session, or every session of a user) bypasses refresh and
// is gated by an ownership check.
package session
