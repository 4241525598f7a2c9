// Package backendtest is an in-memory portal backend built on gin. Tests and
// the development server use it to exercise the client against real HTTP.
//
// It issues HS256 bearer tokens through the jwt package, stores argon2id
// password hashes and keeps second-factor challenges single-use. Codes are
// checked as RFC 6238 TOTP against the enrolled secret; the fixed
// Config.Code is accepted as well so tests need no clock.
package backendtest
