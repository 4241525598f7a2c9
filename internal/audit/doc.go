// Package audit delivers client-side security events (sign-ins, second-factor
// outcomes, session expiry, 2FA changes) to a [Sink] off the caller's
// goroutine.
//
// [Dispatcher] owns one worker and a bounded queue. A full queue either drops
// and counts the event (DropIfFull) or makes Emit wait for room, the
// caller's context, or Close. Close drains what is already queued.
//
// Sinks shipped here: [ChannelSink] for tests and in-process consumers,
// [JSONWriterSink] for JSON lines, [SlogSink] for the application logger,
// and [NoOpSink].
//
// Which events exist, and which fields they carry, is decided by the root
// Client. Events never carry passwords, codes, tokens or enrollment secrets.
package audit
