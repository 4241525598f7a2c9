// Package session owns the authenticated session of a portal client and the
// single durable entry that holds its bearer token.
//
// # Components
//
//   - [Store]: in-memory session plus write-through persistence of the token.
//   - [TokenStorage]: durable backend for the token (memory, file, Redis).
//   - [Session], [Identity]: value types handed out as copies.
//
// # Architecture boundaries
//
// The Store is the only writer of persisted token state. Flows commit into it;
// the request gate reads the token and asks it to clear on expiry. It performs
// no network I/O against the portal backend.
//
// # What this package must NOT do
//
//   - Import goPortal, transport, or middleware (no upward imports).
//   - Validate tokens or decide whether a session is still accepted.
//   - Persist anything besides the bearer token.
package session
